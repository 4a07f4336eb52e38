package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/agenthost/internal/common/logger"
)

func newTestBus(t *testing.T) *MemoryEventBus {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json"})
	require.NoError(t, err)
	b := NewMemoryEventBus(log)
	t.Cleanup(b.Close)
	return b
}

func receive(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestMemoryBus_ExactAndWildcardSubjects(t *testing.T) {
	b := newTestBus(t)

	exact := make(chan *Event, 4)
	single := make(chan *Event, 4)
	tail := make(chan *Event, 4)
	collect := func(ch chan *Event) EventHandler {
		return func(_ context.Context, e *Event) error { ch <- e; return nil }
	}
	_, err := b.Subscribe("session.s1.exited", collect(exact))
	require.NoError(t, err)
	_, err = b.Subscribe("session.*.exited", collect(single))
	require.NoError(t, err)
	_, err = b.Subscribe("session.>", collect(tail))
	require.NoError(t, err)

	ev := NewEvent("session.exited", "test", map[string]any{"code": 0})
	require.NoError(t, b.Publish(context.Background(), "session.s1.exited", ev))

	assert.Equal(t, ev.ID, receive(t, exact).ID)
	assert.Equal(t, ev.ID, receive(t, single).ID)
	assert.Equal(t, ev.ID, receive(t, tail).ID)

	require.NoError(t, b.Publish(context.Background(), "session.s1.state", NewEvent("session.state_changed", "test", nil)))
	receive(t, tail)
	select {
	case <-single:
		t.Fatal("session.*.exited must not match session.s1.state")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	b := newTestBus(t)
	ch := make(chan *Event, 1)
	sub, err := b.Subscribe("detection.apps.refreshed", func(_ context.Context, e *Event) error { ch <- e; return nil })
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe())
	assert.False(t, sub.IsValid())

	require.NoError(t, b.Publish(context.Background(), "detection.apps.refreshed", NewEvent("x", "test", nil)))
	select {
	case <-ch:
		t.Fatal("unsubscribed handler was called")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_Closed(t *testing.T) {
	b := newTestBus(t)
	b.Close()
	assert.False(t, b.IsConnected())
	assert.Error(t, b.Publish(context.Background(), "a", NewEvent("x", "test", nil)))
	_, err := b.Subscribe("a", func(context.Context, *Event) error { return nil })
	assert.Error(t, err)
}

func TestCompilePattern(t *testing.T) {
	assert.Nil(t, compilePattern("a.b"))
	assert.True(t, matches("a.b.c", "a.>", compilePattern("a.>")))
	assert.False(t, matches("a", "a.>", compilePattern("a.>")))
	assert.True(t, matches("a.x.c", "a.*.c", compilePattern("a.*.c")))
	assert.False(t, matches("a.x.y.c", "a.*.c", compilePattern("a.*.c")))
}
