package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/i3x-protocol/i3x-go/pkg/connection"
	"github.com/i3x-protocol/i3x-go/pkg/model"
	"github.com/i3x-protocol/i3x-go/pkg/subscription"
	"github.com/i3x-protocol/i3x-go/pkg/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSource hands out bodies from open and records each Last-Event-ID.
type fakeSource struct {
	mu      sync.Mutex
	lastIDs []string
	open    func(n int) (io.ReadCloser, error)
}

func (s *fakeSource) OpenStream(_ context.Context, _ string, lastEventID string) (io.ReadCloser, error) {
	s.mu.Lock()
	n := len(s.lastIDs)
	s.lastIDs = append(s.lastIDs, lastEventID)
	s.mu.Unlock()
	return s.open(n)
}

func (s *fakeSource) opened() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lastIDs...)
}

// blockingBody serves content and then blocks until closed.
type blockingBody struct {
	r      io.Reader
	closed chan struct{}
	once   sync.Once
}

func newBlockingBody(content string) *blockingBody {
	return &blockingBody{r: strings.NewReader(content), closed: make(chan struct{})}
}

func (b *blockingBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if n > 0 {
		return n, nil
	}
	if err != io.EOF {
		return 0, err
	}
	<-b.closed
	return 0, io.ErrClosedPipe
}

func (b *blockingBody) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

type errorLog struct {
	mu   sync.Mutex
	errs []*Error
}

func (l *errorLog) add(err error) {
	var serr *Error
	if errors.As(err, &serr) {
		l.mu.Lock()
		l.errs = append(l.errs, serr)
		l.mu.Unlock()
	}
}

func (l *errorLog) snapshot() []*Error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Error(nil), l.errs...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StopTimeout = 2 * time.Second
	cfg.Backoff = connection.BackoffConfig{
		Initial:    time.Millisecond,
		Max:        5 * time.Millisecond,
		Multiplier: 2,
	}
	return cfg
}

func change(id string, value int) string {
	return fmt.Sprintf(`{%q:{"data":[{"value":%d,"quality":"Good","timestamp":"2025-01-01T00:00:00Z"}]}}`, id, value)
}

func newTracker(id string) *subscription.Tracker {
	return subscription.NewTracker(id, time.Now(), subscription.DefaultConfig())
}

func TestReaderDeliversInOrder(t *testing.T) {
	body := ": hello\n\n" +
		"event: heartbeat\ndata: {}\n\n" +
		"id: 1\ndata: " + change("e1", 1) + "\n\n" +
		"id: 2\ndata: {not json\n\n" +
		"id: 3\ndata: " + change("e2", 2) + "\n\n" +
		"event: end\ndata:\n\n"

	src := &fakeSource{open: func(int) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	}}
	tracker := newTracker("sub-1")
	r := NewReader(src, tracker, testConfig())

	var mu sync.Mutex
	var got []string
	r.OnValueChange(func(c model.ValueChange) {
		mu.Lock()
		got = append(got, c.ElementID)
		mu.Unlock()
	})
	errs := &errorLog{}
	r.OnError(errs.add)

	require.NoError(t, r.Start(context.Background()))
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not finish")
	}

	mu.Lock()
	assert.Equal(t, []string{"e1", "e2"}, got)
	mu.Unlock()

	reported := errs.snapshot()
	require.Len(t, reported, 2)
	assert.ErrorIs(t, reported[0], ErrMalformedFrame)
	assert.False(t, reported[0].Fatal)
	assert.ErrorIs(t, reported[1], ErrStreamEnded)
	assert.False(t, reported[1].Fatal)
	assert.ErrorIs(t, reported[1], transport.ErrStream)

	assert.Equal(t, "3", r.LastEventID())
	assert.NoError(t, r.Err())
	assert.False(t, tracker.IsStreaming())
	assert.Len(t, src.opened(), 1)
	require.NoError(t, r.Stop())
}

func TestReaderQueuesWithoutHandler(t *testing.T) {
	body := "data: [" + change("a", 1) + "," + change("b", 2) + "]\n\n"
	src := &fakeSource{open: func(int) (io.ReadCloser, error) {
		return newBlockingBody(body), nil
	}}
	tracker := newTracker("sub-q")
	r := NewReader(src, tracker, testConfig())

	require.NoError(t, r.Start(context.Background()))
	assert.True(t, tracker.IsStreaming())
	assert.Eventually(t, func() bool { return tracker.QueuedUpdates() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, r.Stop())
	assert.False(t, tracker.IsStreaming())
	assert.False(t, r.Running())

	drained := tracker.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "a", drained[0].ElementID)
	assert.Equal(t, "b", drained[1].ElementID)
}

func TestReaderDoubleStop(t *testing.T) {
	src := &fakeSource{open: func(int) (io.ReadCloser, error) {
		return newBlockingBody(""), nil
	}}
	tracker := newTracker("sub-2")
	r := NewReader(src, tracker, testConfig())

	assert.NoError(t, r.Stop())
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()))
	assert.True(t, r.Running())

	assert.NoError(t, r.Stop())
	assert.NoError(t, r.Stop())
	assert.False(t, r.Running())
	assert.Len(t, src.opened(), 1)
}

func TestReaderRestartAfterStopTimeout(t *testing.T) {
	body := "id: 1\ndata: " + change("e1", 1) + "\n\n"
	src := &fakeSource{open: func(int) (io.ReadCloser, error) {
		return newBlockingBody(body), nil
	}}
	tracker := newTracker("sub-9")
	cfg := testConfig()
	cfg.StopTimeout = 50 * time.Millisecond
	r := NewReader(src, tracker, cfg)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	r.OnValueChange(func(model.ValueChange) {
		once.Do(func() { close(entered) })
		<-release
	})

	require.NoError(t, r.Start(context.Background()))
	<-entered

	assert.ErrorIs(t, r.Stop(), ErrStopTimeout)
	assert.False(t, tracker.IsStreaming())

	// The old run is still inside the handler: no second session.
	assert.ErrorIs(t, r.Start(context.Background()), ErrStopTimeout)
	assert.Len(t, src.opened(), 1)

	close(release)
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("old run did not exit")
	}

	require.NoError(t, r.Start(context.Background()))
	assert.True(t, tracker.IsStreaming())
	assert.Len(t, src.opened(), 2)

	require.NoError(t, r.Stop())
	assert.False(t, tracker.IsStreaming())
	assert.False(t, r.Running())
}

func TestReaderReconnectsWithLastEventID(t *testing.T) {
	first := "id: 10\ndata: " + change("e1", 1) + "\n\n"
	second := "id: 11\ndata: " + change("e2", 2) + "\n\n"

	src := &fakeSource{open: func(n int) (io.ReadCloser, error) {
		switch n {
		case 0:
			return io.NopCloser(strings.NewReader(first)), nil
		case 1:
			return nil, transport.NewError(transport.KindServer, "unavailable", nil)
		default:
			return newBlockingBody(second), nil
		}
	}}
	tracker := newTracker("sub-3")
	tracker.Register([]string{"e1", "e2"}, 0)
	r := NewReader(src, tracker, testConfig())

	var mu sync.Mutex
	var got []string
	r.OnValueChange(func(c model.ValueChange) {
		mu.Lock()
		got = append(got, c.ElementID)
		mu.Unlock()
	})
	errs := &errorLog{}
	r.OnError(errs.add)

	require.NoError(t, r.Start(context.Background()))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, r.Stop())

	assert.Equal(t, []string{"", "10", "10"}, src.opened())
	assert.Equal(t, "11", r.LastEventID())
	assert.Equal(t, []string{"e1", "e2"}, tracker.ObjectIDs())

	for _, e := range errs.snapshot() {
		assert.False(t, e.Fatal, "unexpected fatal error %v", e)
	}
}

func TestReaderFatalOnNotFound(t *testing.T) {
	src := &fakeSource{open: func(n int) (io.ReadCloser, error) {
		if n == 0 {
			return io.NopCloser(strings.NewReader("data: " + change("e1", 1) + "\n\n")), nil
		}
		return nil, transport.NewError(transport.KindNotFound, "subscription not found", nil)
	}}
	tracker := newTracker("sub-4")
	r := NewReader(src, tracker, testConfig())
	errs := &errorLog{}
	r.OnError(errs.add)

	require.NoError(t, r.Start(context.Background()))
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop on fatal error")
	}

	assert.ErrorIs(t, r.Err(), transport.ErrNotFound)
	reported := errs.snapshot()
	require.NotEmpty(t, reported)
	last := reported[len(reported)-1]
	assert.True(t, last.Fatal)
	assert.ErrorIs(t, last, transport.ErrNotFound)
	assert.False(t, tracker.IsStreaming())
	assert.Len(t, src.opened(), 2)
	assert.NoError(t, r.Stop())
}

func TestReaderStartFailure(t *testing.T) {
	src := &fakeSource{open: func(int) (io.ReadCloser, error) {
		return nil, transport.NewError(transport.KindAuthentication, "bad key", nil)
	}}
	tracker := newTracker("sub-5")
	r := NewReader(src, tracker, testConfig())

	err := r.Start(context.Background())
	assert.ErrorIs(t, err, transport.ErrAuthentication)
	assert.False(t, r.Running())
	assert.False(t, tracker.IsStreaming())
}

func TestReaderHandlerPanic(t *testing.T) {
	body := "data: " + change("boom", 1) + "\n\n" +
		"data: " + change("ok", 2) + "\n\n"
	src := &fakeSource{open: func(int) (io.ReadCloser, error) {
		return newBlockingBody(body), nil
	}}
	r := NewReader(src, newTracker("sub-6"), testConfig())

	var mu sync.Mutex
	var got []string
	r.OnValueChange(func(c model.ValueChange) {
		if c.ElementID == "boom" {
			panic("handler failure")
		}
		mu.Lock()
		got = append(got, c.ElementID)
		mu.Unlock()
	})
	errs := &errorLog{}
	r.OnError(errs.add)

	require.NoError(t, r.Start(context.Background()))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, r.Stop())

	reported := errs.snapshot()
	require.NotEmpty(t, reported)
	assert.ErrorIs(t, reported[0], ErrHandlerPanic)
}

func TestReaderOverHTTP(t *testing.T) {
	var mu sync.Mutex
	var lastIDs []string

	mux := http.NewServeMux()
	mux.HandleFunc("GET /namespaces", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("GET /subscriptions/{id}/stream", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		lastIDs = append(lastIDs, r.Header.Get("Last-Event-ID"))
		n := len(lastIDs)
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if n == 1 {
			fmt.Fprintf(w, "retry: 1\nid: a1\ndata: %s\n\n", change("x", 1))
			return
		}
		fmt.Fprintf(w, "id: a2\ndata: %s\n\n", change("y", 2))
		fmt.Fprint(w, "event: end\ndata:\n\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := transport.New(srv.URL, transport.DefaultOptions())
	require.NoError(t, client.Open(context.Background()))
	defer client.Close()

	tracker := newTracker("sub 7")
	r := NewReader(client, tracker, testConfig())
	require.NoError(t, r.Start(context.Background()))

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not finish")
	}
	require.NoError(t, r.Stop())

	mu.Lock()
	assert.Equal(t, []string{"", "a1"}, lastIDs)
	mu.Unlock()

	drained := tracker.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "x", drained[0].ElementID)
	assert.Equal(t, "y", drained[1].ElementID)
}
