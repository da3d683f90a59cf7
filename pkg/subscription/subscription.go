package subscription

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/i3x-protocol/i3x-go/pkg/model"
)

// Subscription errors.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionDeleted  = errors.New("subscription deleted")
)

// DefaultMaxQueuedUpdates is the default queue bound per subscription.
const DefaultMaxQueuedUpdates = 10000

// State is the lifecycle state of a subscription.
type State uint8

const (
	// StateCreated means the server assigned an ID but nothing is registered.
	StateCreated State = iota

	// StateRegistered means at least one register call was acknowledged.
	StateRegistered

	// StateStreaming means a stream session is attached.
	StateStreaming

	// StateStopped means the stream session ended.
	StateStopped

	// StateDeleted means the subscription was deleted on the server.
	StateDeleted
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateRegistered:
		return "REGISTERED"
	case StateStreaming:
		return "STREAMING"
	case StateStopped:
		return "STOPPED"
	case StateDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// Config holds per-subscription settings.
type Config struct {
	// MaxQueuedUpdates bounds queued changes (default 10000). Negative
	// means unbounded.
	MaxQueuedUpdates int `yaml:"max_queued_updates"`
}

// DefaultConfig returns the default subscription configuration.
func DefaultConfig() Config {
	return Config{MaxQueuedUpdates: DefaultMaxQueuedUpdates}
}

// Object is one registered element.
type Object struct {
	ElementID string
	MaxDepth  int
}

// Tracker is the client-side record of one subscription.
type Tracker struct {
	// Write-once.
	id      string
	created time.Time
	limit   int

	mu        sync.Mutex
	state     State
	streaming bool
	objects   map[string]int

	// queue[head:] holds pending changes.
	queue   []model.ValueChange
	head    int
	dropped uint64

	onStateChange func(oldState, newState State)
}

// NewTracker creates a tracker in StateCreated. A zero created time means now.
func NewTracker(id string, created time.Time, config Config) *Tracker {
	if created.IsZero() {
		created = time.Now()
	}
	limit := config.MaxQueuedUpdates
	if limit == 0 {
		limit = DefaultMaxQueuedUpdates
	}
	return &Tracker{
		id:      id,
		created: created,
		limit:   limit,
		state:   StateCreated,
		objects: make(map[string]int),
	}
}

// ID returns the server-assigned subscription ID.
func (t *Tracker) ID() string {
	return t.id
}

// Created returns the creation time.
func (t *Tracker) Created() time.Time {
	return t.created
}

// Register records acknowledged element IDs with their max depth and
// returns the number of registered objects.
func (t *Tracker) Register(elementIDs []string, maxDepth int) int {
	t.mu.Lock()
	for _, id := range elementIDs {
		t.objects[id] = maxDepth
	}
	n := len(t.objects)
	fn, old, changed := t.transitionLocked(StateCreated, StateRegistered)
	t.mu.Unlock()

	if changed && fn != nil {
		fn(old, StateRegistered)
	}
	return n
}

// Unregister removes element IDs and returns the number still registered.
// Unknown IDs are ignored.
func (t *Tracker) Unregister(elementIDs []string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range elementIDs {
		delete(t.objects, id)
	}
	return len(t.objects)
}

// Objects returns the registered objects sorted by element ID.
func (t *Tracker) Objects() []Object {
	t.mu.Lock()
	out := make([]Object, 0, len(t.objects))
	for id, depth := range t.objects {
		out = append(out, Object{ElementID: id, MaxDepth: depth})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ElementID < out[j].ElementID })
	return out
}

// ObjectIDs returns the registered element IDs, sorted.
func (t *Tracker) ObjectIDs() []string {
	objs := t.Objects()
	ids := make([]string, len(objs))
	for i, o := range objs {
		ids[i] = o.ElementID
	}
	return ids
}

// IsRegistered reports whether elementID is registered.
func (t *Tracker) IsRegistered(elementID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.objects[elementID]
	return ok
}

// Enqueue appends changes in order and returns how many old changes were
// dropped to stay within the queue bound.
func (t *Tracker) Enqueue(changes ...model.ValueChange) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	for _, c := range changes {
		if t.limit > 0 && len(t.queue)-t.head >= t.limit {
			t.queue[t.head] = model.ValueChange{}
			t.head++
			evicted++
		}
		t.queue = append(t.queue, c)
	}
	t.dropped += uint64(evicted)

	// Reclaim the dropped prefix once it dominates the backing array.
	if t.head > 0 && t.head*2 >= len(t.queue) {
		n := copy(t.queue, t.queue[t.head:])
		clear(t.queue[n:])
		t.queue = t.queue[:n]
		t.head = 0
	}
	return evicted
}

// Drain returns and clears all queued changes in arrival order. It never
// blocks waiting for new changes.
func (t *Tracker) Drain() []model.ValueChange {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.queue) == t.head {
		t.queue = t.queue[:0]
		t.head = 0
		return nil
	}
	out := t.queue[t.head:]
	t.queue = nil
	t.head = 0
	return out
}

// QueuedUpdates returns the number of pending changes.
func (t *Tracker) QueuedUpdates() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue) - t.head
}

// Dropped returns how many changes were evicted by the queue bound.
func (t *Tracker) Dropped() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// MarkStreaming records whether a stream session is attached. It returns
// false when the flag already had that value.
func (t *Tracker) MarkStreaming(streaming bool) bool {
	t.mu.Lock()
	if t.streaming == streaming || (streaming && t.state == StateDeleted) {
		t.mu.Unlock()
		return false
	}
	t.streaming = streaming

	var fn func(State, State)
	var old State
	var changed bool
	if streaming {
		fn, old, changed = t.transitionLocked(t.state, StateStreaming)
	} else {
		fn, old, changed = t.transitionLocked(StateStreaming, StateStopped)
	}
	newState := t.state
	t.mu.Unlock()

	if changed && fn != nil {
		fn(old, newState)
	}
	return true
}

// IsStreaming reports whether a stream session is attached.
func (t *Tracker) IsStreaming() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streaming
}

// MarkDeleted moves the tracker to StateDeleted and clears the streaming flag.
func (t *Tracker) MarkDeleted() {
	t.mu.Lock()
	t.streaming = false
	fn, old, changed := t.transitionLocked(t.state, StateDeleted)
	t.mu.Unlock()

	if changed && fn != nil {
		fn(old, StateDeleted)
	}
}

// State returns the lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// OnStateChange sets a callback for lifecycle transitions.
func (t *Tracker) OnStateChange(fn func(oldState, newState State)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStateChange = fn
}

// transitionLocked moves from -> to when the current state is from. The
// callback is returned for invocation outside the lock.
func (t *Tracker) transitionLocked(from, to State) (func(State, State), State, bool) {
	if t.state != from || from == to || t.state == StateDeleted {
		return nil, t.state, false
	}
	old := t.state
	t.state = to
	return t.onStateChange, old, true
}
