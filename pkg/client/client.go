package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/i3x-protocol/i3x-go/pkg/log"
	"github.com/i3x-protocol/i3x-go/pkg/model"
	"github.com/i3x-protocol/i3x-go/pkg/stream"
	"github.com/i3x-protocol/i3x-go/pkg/subscription"
	"github.com/i3x-protocol/i3x-go/pkg/transport"
)

// Client errors.
var (
	ErrNotConnected  = errors.New("client is not connected")
	ErrCallbackPanic = errors.New("callback panicked")
)

// Client talks to one i3X server. Exploration and value calls are plain
// request/response calls; subscriptions run one stream reader each in the
// background and deliver changes through callbacks or per-subscription
// queues.
//
// All methods are safe for concurrent use. Callbacks run on the goroutine
// that produced the event, which for value changes is the subscription's
// stream reader.
type Client struct {
	config    Config
	transport *transport.Client
	logger    *slog.Logger
	plog      log.Logger
	registry  *subscription.Registry

	mu        sync.Mutex
	connected bool
	handles   map[string]*handle

	cbMu          sync.RWMutex
	onConnect     func(*Client)
	onDisconnect  func(*Client)
	onSubscribe   func(*Client, *Subscription)
	onValueChange func(*Client, *Subscription, model.ValueChange)
	onError       func(*Client, error)
}

// handle pairs a subscription with its reader.
type handle struct {
	sub    *Subscription
	reader *stream.Reader
}

// New creates a client for the server at baseURL. No connection is made
// until Connect.
func New(baseURL string, config Config) *Client {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	opts := transport.DefaultOptions()
	opts.Auth = config.Auth
	if config.Timeout > 0 {
		opts.Timeout = config.Timeout
	}
	opts.TLS = config.TLS
	opts.Logger = logger
	opts.ProtocolLogger = config.ProtocolLogger
	if config.Metrics != nil {
		opts.Observer = config.Metrics
	}

	return &Client{
		config:    config,
		transport: transport.New(baseURL, opts),
		logger:    logger,
		plog:      log.OrNoop(config.ProtocolLogger),
		registry:  subscription.NewRegistry(config.Queue),
		handles:   make(map[string]*handle),
	}
}

// Transport returns the underlying transport for calls the client does
// not wrap.
func (c *Client) Transport() *transport.Client {
	return c.transport
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string {
	return c.transport.BaseURL()
}

// IsConnected reports whether Connect succeeded and Disconnect has not
// been called since.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.transport.IsOpen()
}

// Connect opens the transport and fires OnConnect. Connecting a
// connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.transport.Open(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("connected", "url", c.transport.BaseURL())
	c.logState("DISCONNECTED", "CONNECTED")

	c.cbMu.RLock()
	fn := c.onConnect
	c.cbMu.RUnlock()
	if fn != nil {
		c.safeCall("OnConnect", func() { fn(c) })
	}
	return nil
}

// Disconnect stops every stream, closes the transport and fires
// OnDisconnect. Server-side subscriptions are left in place; they can be
// resumed with StartStream after reconnecting. Stream stop failures are
// combined into the returned error.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	handles := c.handles
	c.handles = make(map[string]*handle)
	c.mu.Unlock()

	var g errgroup.Group
	var errMu sync.Mutex
	var stopErr error
	for id, h := range handles {
		if h.reader == nil {
			continue
		}
		g.Go(func() error {
			if err := h.reader.Stop(); err != nil {
				errMu.Lock()
				stopErr = multierr.Append(stopErr, fmt.Errorf("stop stream %s: %w", id, err))
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	c.registry.Clear()

	err := multierr.Append(stopErr, c.transport.Close())

	c.logger.Info("disconnected", "url", c.transport.BaseURL())
	c.logState("CONNECTED", "DISCONNECTED")

	c.cbMu.RLock()
	fn := c.onDisconnect
	c.cbMu.RUnlock()
	if fn != nil {
		c.safeCall("OnDisconnect", func() { fn(c) })
	}
	return err
}

// OnConnect sets the callback fired after Connect succeeds.
func (c *Client) OnConnect(fn func(*Client)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onConnect = fn
}

// OnDisconnect sets the callback fired by Disconnect.
func (c *Client) OnDisconnect(fn func(*Client)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onDisconnect = fn
}

// OnSubscribe sets the callback fired when Subscribe returns a streaming
// subscription.
func (c *Client) OnSubscribe(fn func(*Client, *Subscription)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onSubscribe = fn
}

// OnValueChange sets the callback for streamed value changes. It runs on
// the subscription's reader goroutine and may call back into the client.
func (c *Client) OnValueChange(fn func(*Client, *Subscription, model.ValueChange)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onValueChange = fn
}

// OnError sets the callback for asynchronous faults: stream errors and
// callback panics. Errors from streams are *stream.Error values.
func (c *Client) OnError(fn func(*Client, error)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onError = fn
}

func (c *Client) logState(oldState, newState string) {
	c.plog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.transport.SessionID(),
		Layer:     log.LayerClient,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityTransport,
			OldState: oldState,
			NewState: newState,
		},
	})
}

func (c *Client) requireConnected() error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}
