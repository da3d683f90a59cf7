package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Supervisor errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrMaxAttempts      = errors.New("reconnect attempts exhausted")
)

// State represents the session state.
type State uint8

const (
	// StateIdle indicates no session has been opened.
	StateIdle State = iota

	// StateConnecting indicates the first session is being opened.
	StateConnecting

	// StateStreaming indicates a session is open.
	StateStreaming

	// StateReconnecting indicates a dropped session is being replaced.
	StateReconnecting

	// StateStopped indicates the supervisor finished.
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateStreaming:
		return "STREAMING"
	case StateReconnecting:
		return "RECONNECTING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Session is one open connection. Serve blocks until the session ends.
// A nil return means the remote side ended it cleanly and no reconnect
// should follow.
type Session interface {
	Serve(ctx context.Context) error
}

// DialFunc opens a new session. attempt is 0 for the first session and
// counts reconnects after that.
type DialFunc func(ctx context.Context, attempt int) (Session, error)

// Config configures a Manager.
type Config struct {
	Backoff BackoffConfig

	// MaxAttempts bounds consecutive reconnect attempts without an
	// established session. 0 means unlimited.
	MaxAttempts int

	// IsFatal reports errors that must not be retried.
	IsFatal func(error) bool
}

// Manager supervises a sequence of sessions: it opens the first one,
// serves it, and replaces it with backoff whenever it drops.
type Manager struct {
	mu sync.RWMutex

	state   State
	backoff *Backoff
	dial    DialFunc
	isFatal func(error) bool
	max     int

	session   Session
	retryHint time.Duration

	onStateChange  func(oldState, newState State)
	onReconnecting func(attempt int, delay time.Duration, cause error)
}

// NewManager creates a session supervisor.
func NewManager(dial DialFunc, cfg Config) *Manager {
	isFatal := cfg.IsFatal
	if isFatal == nil {
		isFatal = func(error) bool { return false }
	}
	return &Manager{
		state:   StateIdle,
		backoff: NewBackoffWithConfig(cfg.Backoff),
		dial:    dial,
		isFatal: isFatal,
		max:     cfg.MaxAttempts,
	}
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Attempts returns the reconnect attempts since the last established session.
func (m *Manager) Attempts() int {
	return m.backoff.Attempts()
}

// Connect opens the first session synchronously.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.session != nil {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.mu.Unlock()

	m.setState(StateConnecting)
	s, err := m.dial(ctx, 0)
	if err != nil {
		m.setState(StateStopped)
		return err
	}

	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
	m.setState(StateStreaming)
	return nil
}

// Established marks the current session as healthy and resets the backoff.
func (m *Manager) Established() {
	m.backoff.Reset()
}

// SetRetryHint sets a lower bound for the next reconnect delays.
func (m *Manager) SetRetryHint(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryHint = d
}

// Run serves sessions until ctx is done, a session ends cleanly, a fatal
// error occurs, or MaxAttempts is exceeded. Connect must have succeeded.
// Run returns nil when stopped by ctx or by a clean end.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.RLock()
	session := m.session
	m.mu.RUnlock()
	if session == nil {
		return ErrNotConnected
	}
	defer m.setState(StateStopped)
	defer func() {
		m.mu.Lock()
		m.session = nil
		m.mu.Unlock()
	}()

	for {
		err := session.Serve(ctx)
		if ctx.Err() != nil || err == nil {
			return nil
		}
		if m.isFatal(err) {
			return err
		}

		session, err = m.reconnect(ctx, err)
		if err != nil {
			return err
		}
		if session == nil {
			return nil
		}
	}
}

// reconnect dials until a session opens. It returns a nil session and nil
// error when ctx is done.
func (m *Manager) reconnect(ctx context.Context, cause error) (Session, error) {
	m.setState(StateReconnecting)
	for {
		if m.max > 0 && m.backoff.Attempts() >= m.max {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrMaxAttempts, m.max, cause)
		}

		delay := m.backoff.Next()
		m.mu.RLock()
		if m.retryHint > delay {
			delay = m.retryHint
		}
		onReconnecting := m.onReconnecting
		m.mu.RUnlock()

		attempt := m.backoff.Attempts()
		if onReconnecting != nil {
			onReconnecting(attempt, delay, cause)
		}
		if err := Sleep(ctx, delay); err != nil {
			return nil, nil
		}

		s, err := m.dial(ctx, attempt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			if m.isFatal(err) {
				return nil, err
			}
			cause = err
			continue
		}

		m.mu.Lock()
		m.session = s
		m.mu.Unlock()
		m.setState(StateStreaming)
		return s, nil
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	old := m.state
	m.state = s
	fn := m.onStateChange
	m.mu.Unlock()

	if fn != nil && old != s {
		fn(old, s)
	}
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnReconnecting sets a callback invoked before each reconnect delay.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration, cause error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}
