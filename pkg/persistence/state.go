package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// SessionState is the saved state of one client session.
type SessionState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// BaseURL is the server the subscriptions belong to.
	BaseURL string `json:"base_url"`

	Subscriptions []SubscriptionRecord `json:"subscriptions,omitempty"`
}

// SubscriptionRecord is a server subscription and the elements registered
// on it.
type SubscriptionRecord struct {
	ID      string          `json:"id"`
	Created time.Time       `json:"created"`
	Objects []ElementRecord `json:"objects,omitempty"`
}

// ElementRecord is one registered element.
type ElementRecord struct {
	ElementID string `json:"element_id"`
	MaxDepth  int    `json:"max_depth"`
}

// ElementsByDepth groups the record's elements by registration depth.
func (r SubscriptionRecord) ElementsByDepth() map[int][]string {
	out := make(map[int][]string)
	for _, o := range r.Objects {
		out[o.MaxDepth] = append(out[o.MaxDepth], o.ElementID)
	}
	return out
}

// SessionStore manages persistence of session state to a JSON file.
type SessionStore struct {
	mu   sync.Mutex
	path string
}

// NewSessionStore creates a new session store.
func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Path returns the state file path.
func (s *SessionStore) Path() string {
	return s.path
}

// Save persists the session state to disk. The file is replaced
// atomically.
func (s *SessionStore) Save(state *SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the session state from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *SessionStore) Load() (*SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &SessionState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}
	if state.Version > StateVersion {
		return nil, fmt.Errorf("state file %s has version %d, newest supported is %d", s.path, state.Version, StateVersion)
	}

	return state, nil
}

// Clear removes the state file.
func (s *SessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
