package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i3x-protocol/i3x-go/pkg/connection"
	"github.com/i3x-protocol/i3x-go/pkg/log"
	"github.com/i3x-protocol/i3x-go/pkg/model"
	"github.com/i3x-protocol/i3x-go/pkg/subscription"
	"github.com/i3x-protocol/i3x-go/pkg/transport"
)

// DefaultStopTimeout bounds how long Stop waits for the reader goroutine.
const DefaultStopTimeout = 5 * time.Second

// Source opens event streams. *transport.Client implements it.
type Source interface {
	OpenStream(ctx context.Context, subscriptionID, lastEventID string) (io.ReadCloser, error)
}

var _ Source = (*transport.Client)(nil)

// Observer receives stream activity, typically a metrics collector.
type Observer interface {
	ObserveFrame(kind FrameKind, changes int)
	ObserveReconnect()
	ObserveStreamError(fatal bool)
	ObserveDropped(n int)
}

// Config configures a Reader.
type Config struct {
	// StopTimeout bounds the wait in Stop (default: 5s).
	StopTimeout time.Duration `yaml:"stop_timeout"`

	// Backoff controls reconnect delays.
	Backoff connection.BackoffConfig `yaml:"backoff"`

	// MaxReconnectAttempts bounds consecutive failed reconnects.
	// 0 means unlimited.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`

	// MaxFrameSize bounds the data of one event (default: 1 MiB).
	MaxFrameSize int `yaml:"max_frame_size"`

	// Logger for operational logging. Nil disables logging.
	Logger *slog.Logger `yaml:"-"`

	// ProtocolLogger receives frame, control and state events.
	ProtocolLogger log.Logger `yaml:"-"`

	// Observer receives stream activity.
	Observer Observer `yaml:"-"`
}

// DefaultConfig returns the default reader configuration.
func DefaultConfig() Config {
	return Config{
		StopTimeout:  DefaultStopTimeout,
		Backoff:      connection.DefaultBackoffConfig(),
		MaxFrameSize: DefaultMaxFrameSize,
	}
}

// Reader consumes the event stream of one subscription in a background
// goroutine and hands decoded value changes to a handler, or queues them
// on the subscription's Tracker when no handler is set.
//
// At most one session is live at a time. A dropped session is replaced
// with backoff, resuming with Last-Event-ID; registrations are left alone.
type Reader struct {
	source  Source
	tracker *subscription.Tracker
	config  Config
	logger  *slog.Logger
	plog    log.Logger

	mu            sync.Mutex
	handler       func(model.ValueChange)
	onError       func(error)
	onStateChange func(oldState, newState connection.State)

	cancel      context.CancelFunc
	done        chan struct{}
	stopping    bool
	manager     *connection.Manager
	sessionID   string
	lastEventID string
	err         error
}

// NewReader creates a reader for tracker's subscription.
func NewReader(source Source, tracker *subscription.Tracker, config Config) *Reader {
	if config.StopTimeout <= 0 {
		config.StopTimeout = DefaultStopTimeout
	}
	if config.MaxFrameSize <= 0 {
		config.MaxFrameSize = DefaultMaxFrameSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reader{
		source:  source,
		tracker: tracker,
		config:  config,
		logger:  logger.With("subscription_id", tracker.ID()),
		plog:    log.OrNoop(config.ProtocolLogger),
	}
}

// Tracker returns the subscription tracker.
func (r *Reader) Tracker() *subscription.Tracker {
	return r.tracker
}

// OnValueChange sets the handler for decoded changes. It runs on the reader
// goroutine. With no handler, changes are queued on the tracker.
func (r *Reader) OnValueChange(fn func(model.ValueChange)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = fn
}

// OnError sets the callback for stream faults. Errors are *Error values.
func (r *Reader) OnError(fn func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = fn
}

// OnStateChange sets a callback for session state changes.
func (r *Reader) OnStateChange(fn func(oldState, newState connection.State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStateChange = fn
}

// Running reports whether the reader goroutine is active.
func (r *Reader) Running() bool {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Done returns a channel closed when the current run ends, or nil when
// the reader was never started.
func (r *Reader) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Err returns the error that ended the last run, or nil.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// LastEventID returns the id of the last handled frame.
func (r *Reader) LastEventID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastEventID
}

// SessionID returns the id of the current or last session.
func (r *Reader) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Start opens the first session and returns once it is connected, so a
// failing stream is reported to the caller. Reading continues in the
// background until Stop, a fatal error, or the server ends the stream.
// ctx bounds only the connect; calling Start while running is a no-op.
// Start fails with ErrStopTimeout while a stopped run has not exited yet.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.done != nil {
		select {
		case <-r.done:
		default:
			stopping := r.stopping
			r.mu.Unlock()
			if stopping {
				return fmt.Errorf("%w: previous session still running", ErrStopTimeout)
			}
			return nil
		}
	}
	r.stopping = false

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	manager := connection.NewManager(r.dial, connection.Config{
		Backoff:     r.config.Backoff,
		MaxAttempts: r.config.MaxReconnectAttempts,
		IsFatal:     IsFatal,
	})
	manager.OnStateChange(r.handleStateChange)
	manager.OnReconnecting(r.handleReconnecting)

	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.manager = manager
	r.err = nil
	r.mu.Unlock()

	detach := context.AfterFunc(ctx, cancel)
	err := manager.Connect(runCtx)
	if !detach() && err == nil {
		// ctx ended after the session opened; Run closes it.
		_ = manager.Run(runCtx)
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		close(done)
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		r.logger.Debug("stream start failed", "error", err)
		return err
	}

	r.tracker.MarkStreaming(true)
	r.logger.Debug("stream started", "session_id", r.SessionID())

	go r.run(runCtx, manager, done)
	return nil
}

func (r *Reader) run(ctx context.Context, manager *connection.Manager, done chan struct{}) {
	defer close(done)

	err := manager.Run(ctx)
	stopped := ctx.Err() != nil

	r.mu.Lock()
	current := r.done == done
	if current {
		r.err = err
	}
	r.mu.Unlock()
	if !current {
		return
	}
	r.tracker.MarkStreaming(false)

	switch {
	case err != nil:
		r.logger.Warn("stream terminated", "error", err)
		r.report(err, true)
	case !stopped:
		r.logger.Debug("stream ended by server")
		r.report(ErrStreamEnded, false)
	}
}

// Stop cancels the reader and waits up to StopTimeout for it to exit. The
// tracker is marked not streaming before Stop returns. Stopping a stopped
// reader is a no-op. On ErrStopTimeout the run is still exiting and Start
// fails until it has.
func (r *Reader) Stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	if done != nil {
		r.stopping = true
	}
	r.mu.Unlock()
	if done == nil {
		return nil
	}

	cancel()

	var err error
	t := time.NewTimer(r.config.StopTimeout)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		err = fmt.Errorf("%w after %v", ErrStopTimeout, r.config.StopTimeout)
	}

	if err == nil {
		r.mu.Lock()
		if r.done == done {
			r.done = nil
			r.cancel = nil
			r.stopping = false
		}
		r.mu.Unlock()
	}

	r.tracker.MarkStreaming(false)
	return err
}

// dial opens one session.
func (r *Reader) dial(ctx context.Context, attempt int) (connection.Session, error) {
	body, err := r.source.OpenStream(ctx, r.tracker.ID(), r.LastEventID())
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	r.mu.Lock()
	r.sessionID = id
	r.mu.Unlock()

	return &session{reader: r, id: id, body: body}, nil
}

// session is one open event stream.
type session struct {
	reader *Reader
	id     string
	body   io.ReadCloser
}

// Serve reads frames until the stream ends. Cancelling ctx closes the
// body, which unblocks a pending read.
func (s *session) Serve(ctx context.Context) error {
	r := s.reader
	stop := context.AfterFunc(ctx, func() { _ = s.body.Close() })
	defer stop()
	defer s.body.Close()

	fr := NewFrameReader(s.body, r.config.MaxFrameSize)
	established := false
	for {
		frame, err := fr.ReadFrame()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return transport.NewError(transport.KindStream, "stream closed by server", err)
			}
			return transport.NewError(transport.KindStream, "read stream", err)
		}

		if !established {
			established = true
			r.managerEstablished()
		}
		if r.handleFrame(s, frame) {
			return nil
		}
	}
}

func (r *Reader) managerEstablished() {
	r.mu.Lock()
	m := r.manager
	r.mu.Unlock()
	if m != nil {
		m.Established()
	}
}

// handleFrame processes one frame and reports whether it ended the stream.
func (r *Reader) handleFrame(s *session, frame Frame) bool {
	defer func() {
		if frame.ID != "" {
			r.mu.Lock()
			r.lastEventID = frame.ID
			r.mu.Unlock()
		}
	}()

	if frame.Retry > 0 {
		r.mu.Lock()
		m := r.manager
		r.mu.Unlock()
		if m != nil {
			m.SetRetryHint(frame.Retry)
		}
		retry := frame.Retry
		r.logControl(s.id, &log.ControlMsgEvent{Type: log.ControlMsgRetry, Retry: &retry})
	}

	kind := Classify(frame)
	switch kind {
	case FrameHeartbeat:
		r.logControl(s.id, &log.ControlMsgEvent{Type: log.ControlMsgHeartbeat})
		r.observeFrame(kind, 0)
		return false
	case FrameEnd:
		r.logControl(s.id, &log.ControlMsgEvent{Type: log.ControlMsgEnd})
		r.observeFrame(kind, 0)
		return true
	case FrameRetry:
		r.observeFrame(kind, 0)
		return false
	}

	changes, err := ParseFrame(frame)
	fe := log.NewFrameEvent(frame.Event, frame.ID, frame.Data)
	fe.Changes = len(changes)
	r.plog.Log(log.Event{
		Timestamp:      time.Now(),
		SessionID:      s.id,
		Direction:      log.DirectionIn,
		Layer:          log.LayerStream,
		Category:       log.CategoryMessage,
		SubscriptionID: r.tracker.ID(),
		Frame:          fe,
	})
	r.observeFrame(kind, len(changes))

	if err != nil {
		r.logger.Debug("skipping malformed frame", "session_id", s.id, "event_id", frame.ID, "error", err)
		r.report(err, false)
		return false
	}

	for _, c := range changes {
		r.deliver(c)
	}
	return false
}

// ParseFrame decodes the value changes of a data frame.
func ParseFrame(frame Frame) ([]model.ValueChange, error) {
	changes, err := model.ParseValueChanges(frame.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	return changes, nil
}

// deliver hands one change to the handler or the tracker queue.
func (r *Reader) deliver(c model.ValueChange) {
	r.mu.Lock()
	handler := r.handler
	r.mu.Unlock()

	if handler == nil {
		if n := r.tracker.Enqueue(c); n > 0 && r.config.Observer != nil {
			r.config.Observer.ObserveDropped(n)
		}
		return
	}

	defer func() {
		if p := recover(); p != nil {
			r.report(fmt.Errorf("%w: %v", ErrHandlerPanic, p), false)
		}
	}()
	handler(c)
}

// report wraps err and passes it to the error callback.
func (r *Reader) report(err error, fatal bool) {
	r.mu.Lock()
	fn := r.onError
	sessionID := r.sessionID
	r.mu.Unlock()

	serr := &Error{
		SubscriptionID: r.tracker.ID(),
		SessionID:      sessionID,
		Fatal:          fatal,
		Err:            err,
	}

	ev := &log.ErrorEventData{Layer: log.LayerStream, Message: err.Error(), Fatal: fatal}
	var terr *transport.Error
	if errors.As(err, &terr) && terr.StatusCode != 0 {
		code := terr.StatusCode
		ev.Code = &code
	}
	r.plog.Log(log.Event{
		Timestamp:      time.Now(),
		SessionID:      sessionID,
		Direction:      log.DirectionIn,
		Layer:          log.LayerStream,
		Category:       log.CategoryError,
		SubscriptionID: r.tracker.ID(),
		Error:          ev,
	})
	if r.config.Observer != nil {
		r.config.Observer.ObserveStreamError(fatal)
	}

	if fn == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("error callback panicked", "panic", p)
		}
	}()
	fn(serr)
}

func (r *Reader) handleStateChange(oldState, newState connection.State) {
	r.mu.Lock()
	fn := r.onStateChange
	sessionID := r.sessionID
	r.mu.Unlock()

	r.plog.Log(log.Event{
		Timestamp:      time.Now(),
		SessionID:      sessionID,
		Layer:          log.LayerStream,
		Category:       log.CategoryState,
		SubscriptionID: r.tracker.ID(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityStream,
			OldState: oldState.String(),
			NewState: newState.String(),
		},
	})
	if fn != nil {
		fn(oldState, newState)
	}
}

func (r *Reader) handleReconnecting(attempt int, delay time.Duration, cause error) {
	r.logger.Info("reconnecting stream", "attempt", attempt, "delay", delay, "cause", cause)
	if r.config.Observer != nil {
		r.config.Observer.ObserveReconnect()
	}
	r.report(cause, false)
}

func (r *Reader) observeFrame(kind FrameKind, changes int) {
	if r.config.Observer != nil {
		r.config.Observer.ObserveFrame(kind, changes)
	}
}

func (r *Reader) logControl(sessionID string, ctrl *log.ControlMsgEvent) {
	r.plog.Log(log.Event{
		Timestamp:      time.Now(),
		SessionID:      sessionID,
		Direction:      log.DirectionIn,
		Layer:          log.LayerStream,
		Category:       log.CategoryControl,
		SubscriptionID: r.tracker.ID(),
		ControlMsg:     ctrl,
	})
}
