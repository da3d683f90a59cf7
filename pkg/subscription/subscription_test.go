package subscription

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i3x-protocol/i3x-go/pkg/model"
)

func change(id string) model.ValueChange {
	return model.ValueChange{ElementID: id, Data: []model.VQT{{Value: id}}}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateCreated, "CREATED"},
		{StateRegistered, "REGISTERED"},
		{StateStreaming, "STREAMING"},
		{StateStopped, "STOPPED"},
		{StateDeleted, "DELETED"},
		{State(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d) = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestNewTracker(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker("sub-1", created, DefaultConfig())

	if tr.ID() != "sub-1" {
		t.Errorf("expected ID sub-1, got %s", tr.ID())
	}
	if !tr.Created().Equal(created) {
		t.Errorf("expected created %v, got %v", created, tr.Created())
	}
	if tr.State() != StateCreated {
		t.Errorf("expected CREATED, got %v", tr.State())
	}
	if tr.IsStreaming() {
		t.Error("new tracker must not be streaming")
	}

	if NewTracker("x", time.Time{}, Config{}).Created().IsZero() {
		t.Error("zero created time should default to now")
	}
}

func TestTrackerRegister(t *testing.T) {
	t.Run("Idempotent", func(t *testing.T) {
		tr := NewTracker("sub", time.Now(), DefaultConfig())

		if n := tr.Register([]string{"e1", "e2"}, 1); n != 2 {
			t.Errorf("expected 2 objects, got %d", n)
		}
		if n := tr.Register([]string{"e1"}, 1); n != 2 {
			t.Errorf("re-register must not add, got %d", n)
		}
		if tr.State() != StateRegistered {
			t.Errorf("expected REGISTERED, got %v", tr.State())
		}
	})

	t.Run("DepthReplaced", func(t *testing.T) {
		tr := NewTracker("sub", time.Now(), DefaultConfig())
		tr.Register([]string{"e1"}, 0)
		tr.Register([]string{"e1"}, 3)

		objs := tr.Objects()
		if len(objs) != 1 {
			t.Fatalf("expected 1 object, got %d", len(objs))
		}
		if objs[0].MaxDepth != 3 {
			t.Errorf("expected depth 3, got %d", objs[0].MaxDepth)
		}
	})

	t.Run("Unregister", func(t *testing.T) {
		tr := NewTracker("sub", time.Now(), DefaultConfig())
		tr.Register([]string{"e1", "e2", "e3"}, 0)

		if n := tr.Unregister([]string{"e2", "unknown"}); n != 2 {
			t.Errorf("expected 2 remaining, got %d", n)
		}
		if tr.IsRegistered("e2") {
			t.Error("e2 should be gone")
		}
		ids := tr.ObjectIDs()
		if len(ids) != 2 || ids[0] != "e1" || ids[1] != "e3" {
			t.Errorf("unexpected ids %v", ids)
		}
	})
}

func TestTrackerQueue(t *testing.T) {
	t.Run("DrainInOrder", func(t *testing.T) {
		tr := NewTracker("sub", time.Now(), DefaultConfig())
		tr.Enqueue(change("a"), change("b"))
		tr.Enqueue(change("c"))

		if tr.QueuedUpdates() != 3 {
			t.Errorf("expected 3 queued, got %d", tr.QueuedUpdates())
		}
		got := tr.Drain()
		if len(got) != 3 || got[0].ElementID != "a" || got[2].ElementID != "c" {
			t.Errorf("unexpected drain %+v", got)
		}
		if tr.QueuedUpdates() != 0 {
			t.Errorf("expected empty queue, got %d", tr.QueuedUpdates())
		}
	})

	t.Run("DrainEmpty", func(t *testing.T) {
		tr := NewTracker("sub", time.Now(), DefaultConfig())
		if got := tr.Drain(); len(got) != 0 {
			t.Errorf("expected empty drain, got %d", len(got))
		}
	})

	t.Run("DropOldest", func(t *testing.T) {
		tr := NewTracker("sub", time.Now(), Config{MaxQueuedUpdates: 3})
		for i := 0; i < 5; i++ {
			tr.Enqueue(change(fmt.Sprintf("e%d", i)))
		}

		if tr.Dropped() != 2 {
			t.Errorf("expected 2 dropped, got %d", tr.Dropped())
		}
		got := tr.Drain()
		if len(got) != 3 {
			t.Fatalf("expected 3 kept, got %d", len(got))
		}
		for i, want := range []string{"e2", "e3", "e4"} {
			if got[i].ElementID != want {
				t.Errorf("position %d: expected %s, got %s", i, want, got[i].ElementID)
			}
		}
	})

	t.Run("EvictionCount", func(t *testing.T) {
		tr := NewTracker("sub", time.Now(), Config{MaxQueuedUpdates: 2})
		if n := tr.Enqueue(change("a"), change("b")); n != 0 {
			t.Errorf("expected no eviction, got %d", n)
		}
		if n := tr.Enqueue(change("c"), change("d"), change("e")); n != 3 {
			t.Errorf("expected 3 evictions, got %d", n)
		}
		got := tr.Drain()
		if len(got) != 2 || got[0].ElementID != "d" || got[1].ElementID != "e" {
			t.Errorf("unexpected drain %+v", got)
		}
	})

	t.Run("Unbounded", func(t *testing.T) {
		tr := NewTracker("sub", time.Now(), Config{MaxQueuedUpdates: -1})
		for i := 0; i < DefaultMaxQueuedUpdates+10; i++ {
			tr.Enqueue(change("e"))
		}
		if tr.Dropped() != 0 {
			t.Errorf("expected nothing dropped, got %d", tr.Dropped())
		}
		if tr.QueuedUpdates() != DefaultMaxQueuedUpdates+10 {
			t.Errorf("expected all queued, got %d", tr.QueuedUpdates())
		}
	})
}

func TestTrackerConcurrentEnqueueDrain(t *testing.T) {
	const producers = 4
	const perProducer = 2000

	tr := NewTracker("sub", time.Now(), Config{MaxQueuedUpdates: -1})

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				tr.Enqueue(model.ValueChange{ElementID: fmt.Sprintf("p%d", p), Data: []model.VQT{{Value: i}}})
			}
		}(p)
	}

	var producing atomic.Bool
	producing.Store(true)

	done := make(chan struct{})
	var batches [][]model.ValueChange
	go func() {
		defer close(done)
		for {
			stillProducing := producing.Load()
			if b := tr.Drain(); len(b) > 0 {
				batches = append(batches, b)
			}
			if !stillProducing {
				return
			}
		}
	}()

	wg.Wait()
	producing.Store(false)
	<-done

	// Every event exactly once, and each producer's events in order.
	next := make(map[string]int)
	total := 0
	for _, b := range batches {
		for _, c := range b {
			seq := c.Data[0].Value.(int)
			if seq != next[c.ElementID] {
				t.Fatalf("%s: got sequence %d, want %d", c.ElementID, seq, next[c.ElementID])
			}
			next[c.ElementID]++
			total++
		}
	}
	if total != producers*perProducer {
		t.Errorf("drained %d events, want %d", total, producers*perProducer)
	}
}

func TestTrackerStreamingState(t *testing.T) {
	tr := NewTracker("sub", time.Now(), DefaultConfig())

	var transitions []string
	tr.OnStateChange(func(o, n State) { transitions = append(transitions, o.String()+">"+n.String()) })

	tr.Register([]string{"e1"}, 0)
	if !tr.MarkStreaming(true) {
		t.Error("first MarkStreaming(true) should change the flag")
	}
	if tr.MarkStreaming(true) {
		t.Error("repeat MarkStreaming(true) should be a no-op")
	}
	if !tr.IsStreaming() || tr.State() != StateStreaming {
		t.Errorf("expected streaming, state %v", tr.State())
	}

	if !tr.MarkStreaming(false) {
		t.Error("MarkStreaming(false) should change the flag")
	}
	if tr.MarkStreaming(false) {
		t.Error("second MarkStreaming(false) should be a no-op")
	}
	if tr.State() != StateStopped {
		t.Errorf("expected STOPPED, got %v", tr.State())
	}

	tr.MarkDeleted()
	if tr.MarkStreaming(true) {
		t.Error("deleted tracker must not stream again")
	}
	if tr.State() != StateDeleted {
		t.Errorf("expected DELETED, got %v", tr.State())
	}

	want := []string{
		"CREATED>REGISTERED",
		"REGISTERED>STREAMING",
		"STREAMING>STOPPED",
		"STOPPED>DELETED",
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Config{MaxQueuedUpdates: 5})
	base := time.Now()

	a, created := r.GetOrCreate("a", base.Add(time.Second))
	if !created {
		t.Error("expected new tracker")
	}
	again, created := r.GetOrCreate("a", base)
	if created || again != a {
		t.Error("expected existing tracker")
	}
	r.GetOrCreate("b", base)

	if r.Count() != 2 {
		t.Errorf("expected 2 trackers, got %d", r.Count())
	}

	list := r.List()
	if len(list) != 2 || list[0].ID() != "b" || list[1].ID() != "a" {
		t.Errorf("expected creation order [b a], got %v", []string{list[0].ID(), list[1].ID()})
	}

	if _, err := r.Get("missing"); err != ErrSubscriptionNotFound {
		t.Errorf("expected ErrSubscriptionNotFound, got %v", err)
	}
	if got := r.Remove("a"); got != a {
		t.Error("Remove should return the tracker")
	}
	if r.Remove("a") != nil {
		t.Error("second Remove should return nil")
	}

	cleared := r.Clear()
	if len(cleared) != 1 || r.Count() != 0 {
		t.Errorf("Clear returned %d, count now %d", len(cleared), r.Count())
	}

	// Registry config flows into new trackers.
	tr, _ := r.GetOrCreate("c", base)
	for i := 0; i < 7; i++ {
		tr.Enqueue(change("x"))
	}
	if tr.Dropped() != 2 {
		t.Errorf("expected queue bound 5, dropped %d", tr.Dropped())
	}
}
