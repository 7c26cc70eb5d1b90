package ws

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatcore/internal/domain"
)

type fakeChannel struct {
	id      string
	mu      sync.Mutex
	written []any
	failing bool
	closed  bool
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("broken pipe")
	}
	c.written = append(c.written, v)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

func TestHubConnectDisconnect(t *testing.T) {
	h := NewHub(zap.NewNop())
	ch := &fakeChannel{id: "c1"}

	assert.Nil(t, h.SetConnected("alice", ch))
	got, ok := h.IsReachable("alice")
	require.True(t, ok)
	assert.Equal(t, "c1", got.ID())

	// idempotent
	assert.Nil(t, h.SetConnected("alice", ch))
	assert.Equal(t, 1, h.Online())

	userID, ok := h.SetDisconnected("c1")
	assert.True(t, ok)
	assert.Equal(t, "alice", userID)
	_, ok = h.IsReachable("alice")
	assert.False(t, ok)

	_, ok = h.SetDisconnected("c1")
	assert.False(t, ok)
}

func TestHubReplaceKeepsNewChannel(t *testing.T) {
	h := NewHub(zap.NewNop())
	old := &fakeChannel{id: "old"}
	cur := &fakeChannel{id: "new"}

	h.SetConnected("alice", old)
	replaced := h.SetConnected("alice", cur)
	require.NotNil(t, replaced)
	assert.Equal(t, "old", replaced.ID())

	// a late disconnect of the replaced channel must not drop the new one
	_, ok := h.SetDisconnected("old")
	assert.False(t, ok)
	got, ok := h.IsReachable("alice")
	require.True(t, ok)
	assert.Equal(t, "new", got.ID())
}

func TestHubDispatch(t *testing.T) {
	h := NewHub(zap.NewNop())
	ev := domain.Event{Type: domain.EventMessageReceived, Payload: "x"}

	assert.False(t, h.Dispatch("bob", ev), "offline user")

	ch := &fakeChannel{id: "c1"}
	h.SetConnected("bob", ch)
	assert.True(t, h.Dispatch("bob", ev))
	assert.Equal(t, 1, ch.count())

	ch.failing = true
	assert.False(t, h.Dispatch("bob", ev))
	assert.Equal(t, 1, ch.count())
}

func TestHubConcurrentAccess(t *testing.T) {
	h := NewHub(zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", i%5)
			ch := &fakeChannel{id: fmt.Sprintf("c%d", i)}
			h.SetConnected(user, ch)
			h.Dispatch(user, domain.Event{Type: "ping"})
			h.SetDisconnected(ch.id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, h.Online())
}
