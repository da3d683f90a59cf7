package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/i3x-protocol/i3x-go/cmd/i3x/interactive"
	"github.com/i3x-protocol/i3x-go/cmd/i3x/render"
	"github.com/i3x-protocol/i3x-go/pkg/client"
	"github.com/i3x-protocol/i3x-go/pkg/model"
	"github.com/i3x-protocol/i3x-go/pkg/persistence"
	"github.com/i3x-protocol/i3x-go/pkg/version"
)

// command is one i3x subcommand. Offline commands run without a client.
// maxArgs < 0 means no upper bound.
type command struct {
	usage   string
	minArgs int
	maxArgs int
	offline bool
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"namespaces":    {usage: "namespaces", run: runNamespaces},
	"types":         {usage: "types [namespace]", maxArgs: 1, run: runTypes},
	"relationships": {usage: "relationships [namespace]", maxArgs: 1, run: runRelationships},
	"objects":       {usage: "objects [type-id]", maxArgs: 1, run: runObjects},
	"related":       {usage: "related <id> [relationship]", minArgs: 1, maxArgs: 2, run: runRelated},
	"value":         {usage: "value <id> [depth]", minArgs: 1, maxArgs: 2, run: runValue},
	"history":       {usage: "history <id> [start] [end]", minArgs: 1, maxArgs: 3, run: runHistory},
	"update":        {usage: "update <id> <json>", minArgs: 2, maxArgs: 2, run: runUpdate},
	"subs":          {usage: "subs", run: runSubs},
	"watch":         {usage: "watch <id>...", minArgs: 1, maxArgs: -1, run: runWatch},
	"discover":      {usage: "discover", offline: true, run: runDiscover},
	"interactive":   {usage: "interactive", run: runInteractive},
}

func commandNames() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// usageError reports wrong arguments for a command.
type usageError struct {
	usage string
}

func (e usageError) Error() string {
	return "usage: i3x " + e.usage
}

func (c command) checkArgs(args []string) error {
	if len(args) < c.minArgs || (c.maxArgs >= 0 && len(args) > c.maxArgs) {
		return usageError{usage: c.usage}
	}
	return nil
}

func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func runNamespaces(ctx context.Context, a *app, args []string) error {
	namespaces, err := a.client.Namespaces(ctx)
	if err != nil {
		return err
	}
	render.Namespaces(a.out, namespaces)
	return nil
}

func runTypes(ctx context.Context, a *app, args []string) error {
	types, err := a.client.ObjectTypes(ctx, optionalArg(args, 0))
	if err != nil {
		return err
	}
	render.ObjectTypes(a.out, types)
	return nil
}

func runRelationships(ctx context.Context, a *app, args []string) error {
	types, err := a.client.RelationshipTypes(ctx, optionalArg(args, 0))
	if err != nil {
		return err
	}
	render.RelationshipTypes(a.out, types)
	return nil
}

func runObjects(ctx context.Context, a *app, args []string) error {
	objects, err := a.client.Objects(ctx, optionalArg(args, 0), false)
	if err != nil {
		return err
	}
	render.Objects(a.out, objects)
	return nil
}

func runRelated(ctx context.Context, a *app, args []string) error {
	objects, err := a.client.RelatedObjects(ctx, args[:1], optionalArg(args, 1))
	if err != nil {
		return err
	}
	render.Objects(a.out, objects)
	return nil
}

func runValue(ctx context.Context, a *app, args []string) error {
	depth := client.DefaultValueDepth
	if len(args) == 2 {
		d, err := strconv.Atoi(args[1])
		if err != nil || d < 0 {
			return fmt.Errorf("invalid depth: %s", args[1])
		}
		depth = d
	}
	v, err := a.client.Value(ctx, args[0], depth)
	if err != nil {
		return err
	}
	render.Value(a.out, v)
	return nil
}

func runHistory(ctx context.Context, a *app, args []string) error {
	start, err := parseTime(optionalArg(args, 1))
	if err != nil {
		return fmt.Errorf("invalid start: %w", err)
	}
	end, err := parseTime(optionalArg(args, 2))
	if err != nil {
		return fmt.Errorf("invalid end: %w", err)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return errors.New("end is before start")
	}

	v, err := a.client.History(ctx, args[0], start, end, client.DefaultValueDepth)
	if err != nil {
		return err
	}
	render.Value(a.out, v)
	return nil
}

// parseTime accepts RFC3339 timestamps and durations relative to now
// ("-1h"). An empty string is the zero time.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return time.Now().Add(d), nil
	}
	return time.Parse(time.RFC3339, s)
}

func runUpdate(ctx context.Context, a *app, args []string) error {
	var value any
	if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
		value = args[1]
	}
	res, err := a.client.UpdateValue(ctx, args[0], value)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("update %s rejected: %s", res.ElementID, res.Message)
	}
	fmt.Fprintf(a.out, "Updated %s\n", res.ElementID)
	return nil
}

func runSubs(ctx context.Context, a *app, args []string) error {
	ids, err := a.client.ListSubscriptions(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(a.out, "No subscriptions")
		return nil
	}
	for _, id := range ids {
		info, err := a.client.GetSubscription(ctx, id)
		if err != nil {
			return err
		}
		render.SubscriptionInfo(a.out, info)
	}
	return nil
}

// syncInterval is how often watch drains a queue-mode subscription.
const syncInterval = time.Second

func runWatch(ctx context.Context, a *app, args []string) error {
	delivery, _ := client.ParseDelivery(a.cfg.Delivery)

	a.client.OnValueChange(func(_ *client.Client, sub *client.Subscription, change model.ValueChange) {
		render.Change(a.out, sub.ID(), change)
	})

	sub, err := a.client.Subscribe(ctx, args, client.SubscribeOptions{
		MaxDepth: a.cfg.MaxDepth,
		Delivery: delivery,
	})
	if err != nil {
		if sub != nil {
			a.unsubscribe(sub)
		}
		return err
	}
	defer a.unsubscribe(sub)
	a.logger.Info("watching", "subscription", sub.ID(), "elements", len(sub.Objects()), "delivery", sub.Delivery())

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, change := range a.client.Sync(sub) {
				render.Change(a.out, sub.ID(), change)
			}
			if !sub.IsStreaming() {
				return fmt.Errorf("subscription %s stopped streaming", sub.ID())
			}
		}
	}
}

// unsubscribe deletes sub with a fresh deadline, since the command
// context is usually cancelled by then.
func (a *app) unsubscribe(sub *client.Subscription) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Client.Timeout)
	defer cancel()
	if err := a.client.Unsubscribe(ctx, sub); err != nil {
		a.logger.Warn("unsubscribe", "subscription", sub.ID(), "error", err)
	}
}

func runDiscover(ctx context.Context, a *app, args []string) error {
	browser := a.newBrowser()
	defer browser.Stop()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Discovery.BrowseTimeout)
	defer cancel()

	results, err := browser.Browse(ctx)
	if err != nil {
		return err
	}
	n := 0
	for server := range results {
		n++
		url, err := server.URL()
		if err != nil {
			url = err.Error()
		}
		fmt.Fprintf(a.out, "  %s  %s", server.InstanceName, url)
		if server.Version != "" {
			fmt.Fprintf(a.out, " (version %s)", server.Version)
		}
		if !version.Supports(server.Version) {
			fmt.Fprint(a.out, " [unsupported]")
		}
		fmt.Fprintln(a.out)
	}
	if n == 0 {
		fmt.Fprintln(a.out, "No i3X servers found")
	}
	return nil
}

func runInteractive(ctx context.Context, a *app, args []string) error {
	shell, err := interactive.New(a.client, a.cfg.MaxDepth)
	if err != nil {
		return err
	}
	a.logOut.Set(shell.Stdout())

	var store *persistence.SessionStore
	if a.cfg.StateFile != "" {
		store = persistence.NewSessionStore(a.cfg.StateFile)
		n, err := interactive.RestoreSession(ctx, a.client, store, a.logger)
		if err != nil {
			a.logger.Warn("restore session", "path", a.cfg.StateFile, "error", err)
		}
		if n > 0 {
			fmt.Fprintf(shell.Stdout(), "Resumed %d subscription(s)\n", n)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	shell.Run(runCtx, cancel)

	if store != nil {
		if err := interactive.SaveSession(a.client, store); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}
	return nil
}
