package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/agenthost/internal/common/logger"
	"github.com/kandev/agenthost/internal/db"
	"github.com/kandev/agenthost/internal/events"
	"github.com/kandev/agenthost/internal/events/bus"
	"github.com/kandev/agenthost/internal/platform"
	"github.com/kandev/agenthost/internal/platform/platformtest"
	"github.com/kandev/agenthost/internal/session"
	"github.com/kandev/agenthost/internal/session/sessiontest"
	"github.com/kandev/agenthost/internal/session/store"
)

const notFound = "No conversation found with session ID"

type harness struct {
	svc     *Service
	repo    store.Repository
	manager *session.Manager
	spawner *sessiontest.Spawner
	bus     *bus.MemoryEventBus

	mu     sync.Mutex
	events []*bus.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json"})
	require.NoError(t, err)

	conn, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	pool := db.NewPool(conn, conn)
	t.Cleanup(func() { _ = pool.Close() })
	repo, closeRepo, err := store.Provide(pool)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeRepo() })

	env := platformtest.NewEnv(platform.Linux, "/home/dev", platformtest.NewFS(), map[string]string{"SHELL": "/bin/bash"})
	h := &harness{repo: repo, spawner: &sessiontest.Spawner{}, bus: bus.NewMemoryEventBus(log)}
	h.manager = session.NewManager(env, h.spawner, session.Config{NotFoundSignature: notFound}, log)
	h.svc = NewService(repo, h.manager, h.bus, Options{}, log)

	_, err = h.bus.Subscribe(events.SessionWildcard, func(_ context.Context, e *bus.Event) error {
		h.mu.Lock()
		h.events = append(h.events, e)
		h.mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = h.manager.StopAll(context.Background())
		h.svc.Close()
		h.bus.Close()
	})
	return h
}

func (h *harness) eventTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.Type)
	}
	return out
}

func ids(ws *Workspace) []string {
	out := make([]string, 0, len(ws.Sessions))
	for _, s := range ws.Sessions {
		out = append(out, s.ID)
	}
	return out
}

func TestEnsureWorkspace_CreatesFirstSessionOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	ws, err := h.svc.EnsureWorkspace(ctx, "/repo")
	require.NoError(t, err)
	require.Len(t, ws.Sessions, 1)
	first := ws.Sessions[0]
	assert.Equal(t, "claude", first.AgentID)
	assert.Equal(t, "Claude", first.DisplayName)
	assert.False(t, first.Initialized)
	assert.Equal(t, session.StateUninitialized, first.State)
	assert.Equal(t, first.ID, ws.ActiveSessionID)

	again, err := h.svc.EnsureWorkspace(ctx, "/repo")
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, ids(again))

	_, err = h.svc.EnsureWorkspace(ctx, "")
	assert.ErrorIs(t, err, ErrWorkspaceRequired)
}

func TestNewSession_ActivatesAndNamesWSLVariant(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.EnsureWorkspace(ctx, "/repo")
	require.NoError(t, err)

	rec, err := h.svc.NewSession(ctx, "/repo", "codex-wsl")
	require.NoError(t, err)
	assert.Equal(t, "Codex (WSL)", rec.DisplayName)

	ws, err := h.svc.Workspace(ctx, "/repo")
	require.NoError(t, err)
	assert.Len(t, ws.Sessions, 2)
	assert.Equal(t, rec.ID, ws.ActiveSessionID)

	_, err = h.svc.NewSession(ctx, "/repo", "nope")
	assert.Error(t, err)
}

func TestActivate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ws, err := h.svc.EnsureWorkspace(ctx, "/repo")
	require.NoError(t, err)
	_, err = h.svc.NewSession(ctx, "/repo", "")
	require.NoError(t, err)

	require.NoError(t, h.svc.Activate(ctx, ws.Sessions[0].ID))
	ws, err = h.svc.Workspace(ctx, "/repo")
	require.NoError(t, err)
	assert.Equal(t, ws.Sessions[0].ID, ws.ActiveSessionID)

	assert.ErrorIs(t, h.svc.Activate(ctx, "missing"), store.ErrSessionNotFound)
}

func TestCloseSession_ActivatesNeighbourAtSameIndex(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ws, err := h.svc.EnsureWorkspace(ctx, "/repo")
	require.NoError(t, err)
	a := ws.Sessions[0].ID
	b, err := h.svc.NewSession(ctx, "/repo", "")
	require.NoError(t, err)
	c, err := h.svc.NewSession(ctx, "/repo", "")
	require.NoError(t, err)

	require.NoError(t, h.svc.Activate(ctx, b.ID))
	require.NoError(t, h.svc.CloseSession(ctx, b.ID))
	ws, err = h.svc.Workspace(ctx, "/repo")
	require.NoError(t, err)
	assert.Equal(t, []string{a, c.ID}, ids(ws))
	assert.Equal(t, c.ID, ws.ActiveSessionID)

	// Closing the last entry clamps to the new last one.
	require.NoError(t, h.svc.CloseSession(ctx, c.ID))
	ws, err = h.svc.Workspace(ctx, "/repo")
	require.NoError(t, err)
	assert.Equal(t, []string{a}, ids(ws))
	assert.Equal(t, a, ws.ActiveSessionID)
}

func TestCloseSession_InactiveKeepsSelection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ws, err := h.svc.EnsureWorkspace(ctx, "/repo")
	require.NoError(t, err)
	a := ws.Sessions[0].ID
	b, err := h.svc.NewSession(ctx, "/repo", "")
	require.NoError(t, err)

	require.NoError(t, h.svc.CloseSession(ctx, a))
	ws, err = h.svc.Workspace(ctx, "/repo")
	require.NoError(t, err)
	assert.Equal(t, b.ID, ws.ActiveSessionID)
}

func TestCloseSession_LastSessionIsReplaced(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ws, err := h.svc.EnsureWorkspace(ctx, "/repo")
	require.NoError(t, err)
	only := ws.Sessions[0].ID

	require.NoError(t, h.svc.CloseSession(ctx, only))
	ws, err = h.svc.Workspace(ctx, "/repo")
	require.NoError(t, err)
	require.Len(t, ws.Sessions, 1)
	assert.NotEqual(t, only, ws.Sessions[0].ID)
	assert.False(t, ws.Sessions[0].Initialized)
	assert.Equal(t, ws.Sessions[0].ID, ws.ActiveSessionID)
}

func TestCloseSession_StopsProcess(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ws, err := h.svc.EnsureWorkspace(ctx, "/repo")
	require.NoError(t, err)
	id := ws.Sessions[0].ID

	info, err := h.svc.StartSession(ctx, id, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, session.StateRunning, info.State)

	require.NoError(t, h.svc.CloseSession(ctx, id))
	_, ok := h.manager.Get(id)
	assert.False(t, ok)
	assert.ErrorIs(t, h.svc.CloseSession(ctx, id), store.ErrSessionNotFound)
}

func TestStartSession_FreshThenResume(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ws, err := h.svc.EnsureWorkspace(ctx, "/repo")
	require.NoError(t, err)
	id := ws.Sessions[0].ID

	_, err = h.svc.StartSession(ctx, id, 100, 30)
	require.NoError(t, err)
	specs := h.spawner.Specs()
	require.Len(t, specs, 1)
	assert.Contains(t, specs[0].Args[len(specs[0].Args)-1], "claude --session-id "+id)
	assert.Equal(t, "/repo", specs[0].Dir)

	rec, err := h.repo.GetSession(ctx, id)
	require.NoError(t, err)
	assert.True(t, rec.Initialized)

	again, err := h.svc.StartSession(ctx, id, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, session.StateRunning, again.State)
	assert.Len(t, h.spawner.Specs(), 1, "a running session is not respawned")

	require.NoError(t, h.manager.Stop(ctx, id))
	_, err = h.svc.StartSession(ctx, id, 0, 0)
	require.NoError(t, err)
	specs = h.spawner.Specs()
	require.Len(t, specs, 2)
	assert.Contains(t, specs[1].Args[len(specs[1].Args)-1], "claude --resume "+id)
}

func TestStartSession_SpawnFailureLeavesSessionUninitialized(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.spawner.Err = assert.AnError
	ws, err := h.svc.EnsureWorkspace(ctx, "/repo")
	require.NoError(t, err)
	id := ws.Sessions[0].ID

	info, err := h.svc.StartSession(ctx, id, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, session.StateFailed, info.State)

	rec, err := h.repo.GetSession(ctx, id)
	require.NoError(t, err)
	assert.False(t, rec.Initialized)
}

func TestCleanExit_AutoClosesSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ws, err := h.svc.EnsureWorkspace(ctx, "/repo")
	require.NoError(t, err)
	id := ws.Sessions[0].ID
	second, err := h.svc.NewSession(ctx, "/repo", "")
	require.NoError(t, err)

	_, err = h.svc.StartSession(ctx, id, 0, 0)
	require.NoError(t, err)
	proc := h.spawner.Last()
	proc.Emit(notFound + " " + id)
	proc.Exit(1)

	require.Eventually(t, func() bool {
		_, err := h.repo.GetSession(ctx, id)
		return err != nil
	}, 2*time.Second, 5*time.Millisecond)

	ws, err = h.svc.Workspace(ctx, "/repo")
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, ids(ws))

	require.Eventually(t, func() bool {
		types := h.eventTypes()
		return contains(types, events.SessionExited) && contains(types, events.SessionClosed)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestQuickExit_KeepsSessionForInspection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ws, err := h.svc.EnsureWorkspace(ctx, "/repo")
	require.NoError(t, err)
	id := ws.Sessions[0].ID

	_, err = h.svc.StartSession(ctx, id, 0, 0)
	require.NoError(t, err)
	h.spawner.Last().Exit(127)

	require.Eventually(t, func() bool {
		ws, err := h.svc.Workspace(ctx, "/repo")
		return err == nil && len(ws.Sessions) == 1 && ws.Sessions[0].State == session.StateExitedNeedsAttention
	}, 2*time.Second, 5*time.Millisecond)

	_, err = h.repo.GetSession(ctx, id)
	assert.NoError(t, err)
}

func TestRuntimeEventsArePublished(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ws, err := h.svc.EnsureWorkspace(ctx, "/repo")
	require.NoError(t, err)
	id := ws.Sessions[0].ID

	states := make(chan string, 8)
	_, err = h.bus.Subscribe(events.SessionStateSubject(id), func(_ context.Context, e *bus.Event) error {
		states <- e.Data.(map[string]any)["state"].(string)
		return nil
	})
	require.NoError(t, err)

	_, err = h.svc.StartSession(ctx, id, 0, 0)
	require.NoError(t, err)

	seen := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for !seen[string(session.StateRunning)] {
		select {
		case s := <-states:
			seen[s] = true
		case <-timeout:
			t.Fatalf("running state not published, saw %v", seen)
		}
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
