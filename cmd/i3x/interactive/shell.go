// Package interactive provides the interactive shell of the i3x command.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/i3x-protocol/i3x-go/cmd/i3x/render"
	"github.com/i3x-protocol/i3x-go/pkg/client"
	"github.com/i3x-protocol/i3x-go/pkg/model"
)

// Shell runs subscription and value commands against a connected client.
type Shell struct {
	client   *client.Client
	rl       *readline.Instance
	out      io.Writer
	maxDepth int
}

// New creates a shell reading from the terminal.
func New(c *client.Client, maxDepth int) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "i3x> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	s := newShell(c, rl.Stdout(), maxDepth)
	s.rl = rl
	return s, nil
}

func newShell(c *client.Client, out io.Writer, maxDepth int) *Shell {
	s := &Shell{client: c, out: out, maxDepth: maxDepth}
	c.OnValueChange(func(_ *client.Client, sub *client.Subscription, change model.ValueChange) {
		render.Change(s.out, sub.ID(), change)
	})
	return s
}

// Stdout returns a writer that coordinates with the readline prompt.
// Use it for log output while the shell runs.
func (s *Shell) Stdout() io.Writer {
	return s.out
}

// Run reads commands until quit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()
	stop := context.AfterFunc(ctx, func() { _ = s.rl.Close() })
	defer stop()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if s.Exec(ctx, line) {
			cancel()
			return
		}
	}
}

// Exec runs one command line and reports whether the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()

	case "subscribe", "sub":
		s.cmdSubscribe(ctx, args)

	case "unsubscribe", "unsub":
		s.cmdUnsubscribe(ctx, args)

	case "sync":
		s.cmdSync(ctx, args)

	case "subs", "subscriptions":
		s.cmdSubs(ctx, args)

	case "value", "v":
		s.cmdValue(ctx, args)

	case "stream":
		s.cmdStream(ctx, args)

	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return true

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
i3X Client Commands:
  Subscriptions:
    subscribe [--queue] <element-id>...  - Subscribe and stream changes
    unsubscribe <sub-id>                 - Stop streaming and delete
    sync <sub-id>                        - Drain queued changes
    sync --server <sub-id>               - Poll the server-side queue
    subs [--server]                      - List subscriptions
    stream start|stop <sub-id>           - Start or stop a stream

  Values:
    value <element-id> [depth]           - Read the last known value

  General:
    help                                 - Show this help
    quit                                 - Exit`)
}

func (s *Shell) cmdSubscribe(ctx context.Context, args []string) {
	opts := client.SubscribeOptions{MaxDepth: s.maxDepth}
	var ids []string
	for _, arg := range args {
		if arg == "--queue" {
			opts.Delivery = client.DeliveryQueue
			continue
		}
		ids = append(ids, arg)
	}
	if len(ids) == 0 {
		fmt.Fprintln(s.out, "Usage: subscribe [--queue] <element-id>...")
		return
	}

	sub, err := s.client.Subscribe(ctx, ids, opts)
	if sub == nil {
		fmt.Fprintf(s.out, "Subscribe failed: %v\n", err)
		return
	}
	if err != nil {
		fmt.Fprintf(s.out, "Subscription %s created but not streaming: %v\n", sub.ID(), err)
		return
	}
	fmt.Fprintf(s.out, "Subscription %s streaming %d element(s) (%s)\n", sub.ID(), len(sub.Objects()), sub.Delivery())
}

func (s *Shell) cmdUnsubscribe(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: unsubscribe <sub-id>")
		return
	}
	if err := s.client.UnsubscribeID(ctx, args[0]); err != nil {
		fmt.Fprintf(s.out, "Unsubscribe failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Subscription %s removed\n", args[0])
}

func (s *Shell) cmdSync(ctx context.Context, args []string) {
	server := len(args) > 0 && args[0] == "--server"
	if server {
		args = args[1:]
	}
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: sync [--server] <sub-id>")
		return
	}

	var (
		changes []model.ValueChange
		err     error
	)
	if server {
		changes, err = s.client.SyncServer(ctx, args[0])
	} else {
		var sub *client.Subscription
		sub, err = s.client.Subscription(args[0])
		if err == nil {
			changes = s.client.Sync(sub)
		}
	}
	if err != nil {
		fmt.Fprintf(s.out, "Sync failed: %v\n", err)
		return
	}

	if len(changes) == 0 {
		fmt.Fprintln(s.out, "No queued changes")
		return
	}
	for _, c := range changes {
		render.Change(s.out, args[0], c)
	}
}

func (s *Shell) cmdSubs(ctx context.Context, args []string) {
	if len(args) > 0 && args[0] == "--server" {
		ids, err := s.client.ListSubscriptions(ctx)
		if err != nil {
			fmt.Fprintf(s.out, "List failed: %v\n", err)
			return
		}
		if len(ids) == 0 {
			fmt.Fprintln(s.out, "No subscriptions on server")
			return
		}
		for _, id := range ids {
			info, err := s.client.GetSubscription(ctx, id)
			if err != nil {
				fmt.Fprintf(s.out, "  %s  (%v)\n", id, err)
				continue
			}
			render.SubscriptionInfo(s.out, info)
		}
		return
	}

	subs := s.client.Subscriptions()
	if len(subs) == 0 {
		fmt.Fprintln(s.out, "No subscriptions")
		return
	}
	fmt.Fprintf(s.out, "Subscriptions (%d):\n", len(subs))
	for _, sub := range subs {
		render.Subscription(s.out, sub)
	}
}

func (s *Shell) cmdValue(ctx context.Context, args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(s.out, "Usage: value <element-id> [depth]")
		return
	}
	depth := client.DefaultValueDepth
	if len(args) == 2 {
		d, err := strconv.Atoi(args[1])
		if err != nil || d < 0 {
			fmt.Fprintf(s.out, "Invalid depth: %s\n", args[1])
			return
		}
		depth = d
	}

	v, err := s.client.Value(ctx, args[0], depth)
	if err != nil {
		fmt.Fprintf(s.out, "Read failed: %v\n", err)
		return
	}
	render.Value(s.out, v)
}

func (s *Shell) cmdStream(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.out, "Usage: stream start|stop <sub-id>")
		return
	}

	var err error
	switch args[0] {
	case "start":
		err = s.client.StartStream(ctx, args[1])
	case "stop":
		err = s.client.StopStream(args[1])
	default:
		fmt.Fprintln(s.out, "Usage: stream start|stop <sub-id>")
		return
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(s.out, "Stream %s failed: %v\n", args[0], err)
		return
	}
	fmt.Fprintf(s.out, "Stream %s: %s\n", args[1], args[0])
}
