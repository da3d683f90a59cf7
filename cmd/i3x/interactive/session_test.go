package interactive

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i3x-protocol/i3x-go/internal/i3xtest"
	"github.com/i3x-protocol/i3x-go/pkg/client"
	"github.com/i3x-protocol/i3x-go/pkg/persistence"
)

func connectTo(t *testing.T, url string) *client.Client {
	t.Helper()
	cfg := client.DefaultConfig()
	cfg.Timeout = 5 * time.Second
	cfg.Stream.StopTimeout = 2 * time.Second
	cfg.Stream.Backoff.Initial = time.Millisecond
	cfg.Stream.Backoff.Jitter = 0

	c := client.New(url, cfg)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func TestSessionResumesAfterRestart(t *testing.T) {
	s, _, f := newTestShell(t)
	ctx := context.Background()
	store := persistence.NewSessionStore(filepath.Join(t.TempDir(), "session.json"))

	s.Exec(ctx, "subscribe pump-1")
	require.NoError(t, SaveSession(s.client, store))
	require.NoError(t, s.client.Disconnect())
	require.True(t, f.HasSubscription("sub-1"))

	state, err := store.Load()
	require.NoError(t, err)
	require.Len(t, state.Subscriptions, 1)
	assert.Equal(t, "sub-1", state.Subscriptions[0].ID)
	assert.Equal(t, []persistence.ElementRecord{{ElementID: "pump-1", MaxDepth: 0}}, state.Subscriptions[0].Objects)

	c := connectTo(t, f.URL())
	out := &syncBuffer{}
	newShell(c, out, 0)

	n, err := RestoreSession(ctx, c, store, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sub, err := c.Subscription("sub-1")
	require.NoError(t, err)
	assert.True(t, sub.IsStreaming())
	require.Len(t, sub.Objects(), 1)
	assert.Equal(t, "pump-1", sub.Objects()[0].ElementID)

	f.Push(t, "sub-1", i3xtest.ChangeEvent("7", "pump-1", 42))
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[sub-1] pump-1 = 42")
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSessionDropsForgottenSubscriptions(t *testing.T) {
	s, _, f := newTestShell(t)
	ctx := context.Background()
	store := persistence.NewSessionStore(filepath.Join(t.TempDir(), "session.json"))

	s.Exec(ctx, "subscribe pump-1")
	require.NoError(t, SaveSession(s.client, store))
	require.NoError(t, s.client.Disconnect())
	f.Forget("sub-1")

	c := connectTo(t, f.URL())
	n, err := RestoreSession(ctx, c, store, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, c.Subscriptions())

	// Nothing left to save clears the file.
	require.NoError(t, SaveSession(c, store))
	state, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestSessionIgnoresOtherServer(t *testing.T) {
	f := i3xtest.NewServer(t)
	store := persistence.NewSessionStore(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, store.Save(&persistence.SessionState{
		BaseURL:       "http://elsewhere:8080",
		Subscriptions: []persistence.SubscriptionRecord{{ID: "sub-9"}},
	}))

	c := connectTo(t, f.URL())
	n, err := RestoreSession(context.Background(), c, store, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, f.RegisterCount())
}

func TestSessionNoStateFile(t *testing.T) {
	f := i3xtest.NewServer(t)
	c := connectTo(t, f.URL())
	store := persistence.NewSessionStore(filepath.Join(t.TempDir(), "missing.json"))

	n, err := RestoreSession(context.Background(), c, store, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
