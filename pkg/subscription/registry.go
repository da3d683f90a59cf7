package subscription

import (
	"sort"
	"sync"
	"time"
)

// Registry holds the trackers of one client, keyed by subscription ID.
type Registry struct {
	mu       sync.RWMutex
	config   Config
	trackers map[string]*Tracker
}

// NewRegistry creates an empty registry. New trackers use config.
func NewRegistry(config Config) *Registry {
	return &Registry{
		config:   config,
		trackers: make(map[string]*Tracker),
	}
}

// GetOrCreate returns the tracker for id, creating it when absent. The
// second result reports whether a tracker was created.
func (r *Registry) GetOrCreate(id string, created time.Time) (*Tracker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.trackers[id]; ok {
		return t, false
	}
	t := NewTracker(id, created, r.config)
	r.trackers[id] = t
	return t, true
}

// Get returns the tracker for id.
func (r *Registry) Get(id string) (*Tracker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.trackers[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return t, nil
}

// Remove deletes the tracker for id and returns it, or nil when absent.
func (r *Registry) Remove(id string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.trackers[id]
	delete(r.trackers, id)
	return t
}

// List returns all trackers ordered by creation time.
func (r *Registry) List() []*Tracker {
	r.mu.RLock()
	out := make([]*Tracker, 0, len(r.trackers))
	for _, t := range r.trackers {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].created.Equal(out[j].created) {
			return out[i].id < out[j].id
		}
		return out[i].created.Before(out[j].created)
	})
	return out
}

// Count returns the number of trackers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.trackers)
}

// Clear removes all trackers and returns them.
func (r *Registry) Clear() []*Tracker {
	r.mu.Lock()
	old := r.trackers
	r.trackers = make(map[string]*Tracker)
	r.mu.Unlock()

	out := make([]*Tracker, 0, len(old))
	for _, t := range old {
		out = append(out, t)
	}
	return out
}
