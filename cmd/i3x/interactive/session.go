package interactive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.uber.org/multierr"

	"github.com/i3x-protocol/i3x-go/pkg/client"
	"github.com/i3x-protocol/i3x-go/pkg/persistence"
	"github.com/i3x-protocol/i3x-go/pkg/transport"
)

// SaveSession records the subscriptions of c in store. Subscriptions stay
// on the server after the client disconnects, so a later RestoreSession
// can resume them.
func SaveSession(c *client.Client, store *persistence.SessionStore) error {
	state := &persistence.SessionState{BaseURL: c.BaseURL()}
	for _, sub := range c.Subscriptions() {
		rec := persistence.SubscriptionRecord{ID: sub.ID(), Created: sub.Created()}
		for _, o := range sub.Objects() {
			rec.Objects = append(rec.Objects, persistence.ElementRecord{ElementID: o.ElementID, MaxDepth: o.MaxDepth})
		}
		state.Subscriptions = append(state.Subscriptions, rec)
	}
	if len(state.Subscriptions) == 0 {
		return store.Clear()
	}
	return store.Save(state)
}

// RestoreSession re-registers and restarts the streams of the
// subscriptions saved in store. Subscriptions the server no longer knows
// are dropped. A state file saved for another server is ignored.
// It returns the number of subscriptions resumed.
func RestoreSession(ctx context.Context, c *client.Client, store *persistence.SessionStore, logger *slog.Logger) (int, error) {
	state, err := store.Load()
	if err != nil {
		return 0, fmt.Errorf("load session: %w", err)
	}
	if state == nil {
		return 0, nil
	}
	if state.BaseURL != c.BaseURL() {
		logger.Info("session state belongs to another server, ignoring",
			"path", store.Path(), "saved_for", state.BaseURL)
		return 0, nil
	}

	var errs error
	restored := 0
	for _, rec := range state.Subscriptions {
		err := resume(ctx, c, rec)
		switch {
		case err == nil:
			restored++
			logger.Info("subscription resumed", "subscription_id", rec.ID, "elements", len(rec.Objects))
		case errors.Is(err, transport.ErrNotFound):
			logger.Info("subscription no longer on server", "subscription_id", rec.ID)
			if err := c.UnsubscribeID(context.WithoutCancel(ctx), rec.ID); err != nil {
				logger.Debug("forget subscription", "subscription_id", rec.ID, "error", err)
			}
		default:
			errs = multierr.Append(errs, fmt.Errorf("resume %s: %w", rec.ID, err))
		}
	}
	return restored, errs
}

func resume(ctx context.Context, c *client.Client, rec persistence.SubscriptionRecord) error {
	byDepth := rec.ElementsByDepth()
	depths := make([]int, 0, len(byDepth))
	for d := range byDepth {
		depths = append(depths, d)
	}
	sort.Ints(depths)

	for _, d := range depths {
		if _, err := c.RegisterItems(ctx, rec.ID, byDepth[d], d); err != nil {
			return err
		}
	}
	return c.StartStream(ctx, rec.ID)
}
