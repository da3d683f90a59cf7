package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/multierr"

	"github.com/i3x-protocol/i3x-go/pkg/model"
	"github.com/i3x-protocol/i3x-go/pkg/stream"
	"github.com/i3x-protocol/i3x-go/pkg/subscription"
	"github.com/i3x-protocol/i3x-go/pkg/transport"
)

// ErrStreamStart is returned by Subscribe when the subscription was
// created and registered but its stream could not be opened.
var ErrStreamStart = errors.New("subscription registered but stream did not start")

// Subscribe creates a subscription, registers elementIDs and starts its
// stream. Setup failures abort the call and are returned.
//
// When only the stream fails to open, the registered subscription is
// returned together with an error wrapping ErrStreamStart; it is not
// streaming and can be retried with StartStream or removed with
// Unsubscribe.
func (c *Client) Subscribe(ctx context.Context, elementIDs []string, opts SubscribeOptions) (*Subscription, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	id, err := c.CreateSubscription(ctx)
	if err != nil {
		return nil, err
	}
	sub := c.adopt(id, opts.Delivery)

	if _, err := c.RegisterItems(ctx, id, elementIDs, opts.MaxDepth); err != nil {
		if _, delErr := c.DeleteSubscription(context.WithoutCancel(ctx), id); delErr != nil {
			c.logger.Debug("cleanup after failed register", "subscription_id", id, "error", delErr)
			c.forget(id)
		}
		return nil, err
	}

	if err := c.StartStream(ctx, id); err != nil {
		c.logger.Warn("stream start failed", "subscription_id", id, "error", err)
		return sub, fmt.Errorf("%w: %w", ErrStreamStart, err)
	}

	c.cbMu.RLock()
	fn := c.onSubscribe
	c.cbMu.RUnlock()
	if fn != nil {
		c.safeCall("OnSubscribe", func() { fn(c, sub) })
	}
	return sub, nil
}

// Unsubscribe stops the stream of sub and deletes it on the server. The
// delete is attempted even when stopping fails; both errors are returned.
func (c *Client) Unsubscribe(ctx context.Context, sub *Subscription) error {
	return c.UnsubscribeID(ctx, sub.ID())
}

// UnsubscribeID is Unsubscribe by subscription id.
func (c *Client) UnsubscribeID(ctx context.Context, subscriptionID string) error {
	stopErr := c.StopStream(subscriptionID)
	_, delErr := c.DeleteSubscription(ctx, subscriptionID)
	return multierr.Combine(stopErr, delErr)
}

// Sync returns and clears the changes queued for sub. It never blocks
// waiting for new changes.
func (c *Client) Sync(sub *Subscription) []model.ValueChange {
	return sub.tracker.Drain()
}

// SyncServer polls the server-side queue of a subscription.
func (c *Client) SyncServer(ctx context.Context, subscriptionID string) ([]model.ValueChange, error) {
	var items []json.RawMessage
	path := subscriptionPath(subscriptionID) + "/sync"
	if err := c.transport.Post(ctx, path, nil, &items); err != nil {
		return nil, err
	}

	var out []model.ValueChange
	for _, raw := range items {
		changes, err := model.ParseValueChanges(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, changes...)
	}
	return out, nil
}

// CreateSubscription creates an empty subscription and returns its id.
func (c *Client) CreateSubscription(ctx context.Context) (string, error) {
	var resp map[string]any
	if err := c.transport.Post(ctx, "/subscriptions", struct{}{}, &resp); err != nil {
		return "", subscriptionError("create subscription", err)
	}

	id, err := idString(resp["subscriptionId"])
	if err != nil {
		return "", subscriptionError("create subscription", err)
	}

	created := time.Now()
	if s, ok := resp["created"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			created = t
		}
	}
	c.registry.GetOrCreate(id, created)
	c.logger.Debug("subscription created", "subscription_id", id)
	return id, nil
}

// RegisterItems registers elements on a subscription. The local record is
// updated only after the server acknowledges. Registering an element again
// updates its depth.
func (c *Client) RegisterItems(ctx context.Context, subscriptionID string, elementIDs []string, maxDepth int) (model.RegisterResult, error) {
	var resp map[string]any
	req := idsRequest{ElementIDs: elementIDs, MaxDepth: depth(maxDepth)}
	if err := c.transport.Post(ctx, subscriptionPath(subscriptionID)+"/register", req, &resp); err != nil {
		return model.RegisterResult{}, subscriptionError("register items", err)
	}
	result, err := model.RegisterResultFromMap(resp)
	if err != nil {
		return model.RegisterResult{}, err
	}

	sub := c.adopt(subscriptionID, DeliveryAuto)
	sub.tracker.Register(elementIDs, maxDepth)
	return result, nil
}

// UnregisterItems removes elements from a subscription. Unknown elements
// are ignored.
func (c *Client) UnregisterItems(ctx context.Context, subscriptionID string, elementIDs []string) (model.RegisterResult, error) {
	var resp map[string]any
	req := idsRequest{ElementIDs: elementIDs}
	if err := c.transport.Post(ctx, subscriptionPath(subscriptionID)+"/unregister", req, &resp); err != nil {
		return model.RegisterResult{}, subscriptionError("unregister items", err)
	}
	result, err := model.RegisterResultFromMap(resp)
	if err != nil {
		return model.RegisterResult{}, err
	}

	sub := c.adopt(subscriptionID, DeliveryAuto)
	sub.tracker.Unregister(elementIDs)
	return result, nil
}

// ListSubscriptions returns the ids of all subscriptions on the server.
func (c *Client) ListSubscriptions(ctx context.Context) ([]string, error) {
	var resp struct {
		SubscriptionIDs []any `json:"subscriptionIds"`
	}
	if err := c.transport.Get(ctx, "/subscriptions", nil, &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.SubscriptionIDs))
	for _, v := range resp.SubscriptionIDs {
		id, err := idString(v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetSubscription returns the server's view of a subscription.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (model.SubscriptionInfo, error) {
	var resp map[string]any
	if err := c.transport.Get(ctx, subscriptionPath(subscriptionID), nil, &resp); err != nil {
		return model.SubscriptionInfo{}, err
	}
	return model.SubscriptionInfoFromMap(resp)
}

// DeleteSubscription deletes a subscription on the server and forgets it
// locally. Its stream, if any, must be stopped first.
func (c *Client) DeleteSubscription(ctx context.Context, subscriptionID string) (model.DeleteResult, error) {
	var resp map[string]any
	err := c.transport.Delete(ctx, subscriptionPath(subscriptionID), &resp)
	if err != nil && !errors.Is(err, transport.ErrNotFound) {
		return model.DeleteResult{}, subscriptionError("delete subscription", err)
	}
	c.forget(subscriptionID)

	if err != nil {
		return model.DeleteResult{NotFound: []string{subscriptionID}}, subscriptionError("delete subscription", err)
	}
	return model.DeleteResultFromMap(resp)
}

// StartStream starts the stream reader of a subscription. Starting a
// streaming subscription is a no-op. Unknown ids are adopted, so streams
// of subscriptions created elsewhere can be resumed.
func (c *Client) StartStream(ctx context.Context, subscriptionID string) error {
	if err := c.requireConnected(); err != nil {
		return err
	}
	sub := c.adopt(subscriptionID, DeliveryAuto)

	c.mu.Lock()
	h, ok := c.handles[subscriptionID]
	if !ok {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if h.reader == nil {
		h.reader = c.newReader(sub)
	}
	r := h.reader
	c.mu.Unlock()

	return r.Start(ctx)
}

// StopStream stops the stream reader of a subscription and waits for it to
// exit. The subscription stays registered on the server. Stopping a
// stopped stream is a no-op.
func (c *Client) StopStream(subscriptionID string) error {
	c.mu.Lock()
	h, ok := c.handles[subscriptionID]
	var r *stream.Reader
	if ok {
		r = h.reader
	}
	c.mu.Unlock()

	if r == nil {
		return nil
	}
	return r.Stop()
}

// Subscription returns the local handle of a known subscription.
func (c *Client) Subscription(subscriptionID string) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[subscriptionID]
	if !ok {
		return nil, subscription.ErrSubscriptionNotFound
	}
	return h.sub, nil
}

// Subscriptions returns the local handles ordered by creation time.
func (c *Client) Subscriptions() []*Subscription {
	trackers := c.registry.List()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Subscription, 0, len(trackers))
	for _, t := range trackers {
		if h, ok := c.handles[t.ID()]; ok {
			out = append(out, h.sub)
		}
	}
	return out
}

// forget drops the local tracker and handle of id.
func (c *Client) forget(id string) {
	if t := c.registry.Remove(id); t != nil {
		t.MarkDeleted()
	}
	c.mu.Lock()
	delete(c.handles, id)
	c.mu.Unlock()
}

// adopt returns the handle for id, creating tracker and handle when the
// client has not seen id. delivery applies only to new handles.
func (c *Client) adopt(id string, delivery Delivery) *Subscription {
	tracker, _ := c.registry.GetOrCreate(id, time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.handles[id]; ok {
		return h.sub
	}
	sub := &Subscription{client: c, tracker: tracker, delivery: delivery}
	c.handles[id] = &handle{sub: sub}
	return sub
}

func (c *Client) newReader(sub *Subscription) *stream.Reader {
	cfg := c.config.Stream
	cfg.Logger = c.logger
	cfg.ProtocolLogger = c.config.ProtocolLogger
	if c.config.Metrics != nil {
		cfg.Observer = c.config.Metrics
	}

	r := stream.NewReader(c.transport, sub.tracker, cfg)
	if sub.delivery != DeliveryQueue {
		r.OnValueChange(func(change model.ValueChange) {
			c.deliver(sub, change)
		})
	}
	r.OnError(c.reportError)
	return r
}

func subscriptionPath(id string) string {
	return "/subscriptions/" + transport.EscapeID(id)
}

// subscriptionError wraps a rejected subscription call. The result
// matches both transport.ErrSubscription and the cause's kind.
func subscriptionError(op string, err error) error {
	return transport.NewError(transport.KindSubscription, op, err)
}

// idString accepts string and numeric subscription ids.
func idString(v any) (string, error) {
	switch id := v.(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("%w: subscriptionId %v", model.ErrInvalidField, v)
}
