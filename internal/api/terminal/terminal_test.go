package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/agenthost/internal/common/logger"
	"github.com/kandev/agenthost/internal/platform"
	"github.com/kandev/agenthost/internal/platform/platformtest"
	"github.com/kandev/agenthost/internal/session"
	"github.com/kandev/agenthost/internal/session/sessiontest"
)

type harness struct {
	server  *httptest.Server
	manager *session.Manager
	spawner *sessiontest.Spawner
}

func newHarness(t *testing.T, starter Starter) *harness {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json"})
	require.NoError(t, err)

	env := platformtest.NewEnv(platform.Linux, "/home/dev", platformtest.NewFS(), map[string]string{"SHELL": "/bin/bash"})
	h := &harness{spawner: &sessiontest.Spawner{}}
	h.manager = session.NewManager(env, h.spawner, session.Config{}, log)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router, NewHandler(h.manager, starter, log))
	h.server = httptest.NewServer(router)
	t.Cleanup(func() {
		h.server.Close()
		_ = h.manager.StopAll(context.Background())
	})
	return h
}

func (h *harness) dial(t *testing.T, id string) *gorillaws.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/api/v1/sessions/" + id + "/terminal"
	conn, resp, err := gorillaws.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (h *harness) start(t *testing.T, id string) *sessiontest.Process {
	t.Helper()
	_, err := h.manager.Create(context.Background(), session.CreateRequest{
		SessionID: id, AgentID: "claude", WorkspacePath: "/repo",
	})
	require.NoError(t, err)
	return h.spawner.Last()
}

func readFrame(t *testing.T, conn *gorillaws.Conn) (int, []byte) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return mt, data
}

func TestBridge_OutputInputAndResize(t *testing.T) {
	h := newHarness(t, nil)
	proc := h.start(t, "s1")
	conn := h.dial(t, "s1")

	go proc.Emit("hello\r\n")
	mt, data := readFrame(t, conn)
	assert.Equal(t, gorillaws.BinaryMessage, mt)
	assert.Equal(t, "hello\r\n", string(data))

	require.NoError(t, conn.WriteMessage(gorillaws.BinaryMessage, []byte("ls\r")))
	resize, _ := json.Marshal(ResizePayload{Cols: 100, Rows: 30})
	require.NoError(t, conn.WriteMessage(gorillaws.BinaryMessage, append([]byte{resizeCommandByte}, resize...)))

	require.Eventually(t, func() bool {
		sizes := proc.Sizes()
		return proc.Input() == "ls\r" && len(sizes) == 1 && sizes[0] == [2]uint16{100, 30}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBridge_ExitIsSentAsNotice(t *testing.T) {
	h := newHarness(t, nil)
	proc := h.start(t, "s1")
	conn := h.dial(t, "s1")

	proc.Exit(1)
	for {
		mt, data := readFrame(t, conn)
		if mt != gorillaws.TextMessage {
			continue
		}
		var n Notice
		require.NoError(t, json.Unmarshal(data, &n))
		if n.Kind == session.EventExited {
			require.NotNil(t, n.Exit)
			assert.Equal(t, session.OutcomeNeedsAttention, n.Exit.Outcome)
			return
		}
	}
}

func TestBridge_StopClosesSocket(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t, "s1")
	conn := h.dial(t, "s1")

	require.NoError(t, h.manager.Stop(context.Background(), "s1"))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			assert.True(t, gorillaws.IsCloseError(err, gorillaws.CloseNormalClosure), "unexpected error: %v", err)
			return
		}
	}
}

func TestBridge_UnknownSession(t *testing.T) {
	h := newHarness(t, nil)
	resp, err := http.Get(h.server.URL + "/api/v1/sessions/nope/terminal")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type starterFunc func(ctx context.Context, id string, cols, rows int) (session.Info, error)

func (f starterFunc) StartSession(ctx context.Context, id string, cols, rows int) (session.Info, error) {
	return f(ctx, id, cols, rows)
}

func TestBridge_StartsStoredSession(t *testing.T) {
	var h *harness
	sizes := make(chan [2]int, 1)
	h = newHarness(t, starterFunc(func(ctx context.Context, id string, cols, rows int) (session.Info, error) {
		sizes <- [2]int{cols, rows}
		return h.manager.Create(ctx, session.CreateRequest{SessionID: id, AgentID: "claude", Cols: cols, Rows: rows})
	}))

	u := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/api/v1/sessions/s2/terminal?cols=90&rows=20"
	conn, resp, err := gorillaws.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer conn.Close()

	assert.Equal(t, [2]int{90, 20}, <-sizes)
	specs := h.spawner.Specs()
	require.Len(t, specs, 1)
	assert.Equal(t, 90, specs[0].Cols)
}

func readNotice(t *testing.T, conn *gorillaws.Conn) Notice {
	t.Helper()
	mt, data := readFrame(t, conn)
	require.Equal(t, gorillaws.TextMessage, mt)
	var n Notice
	require.NoError(t, json.Unmarshal(data, &n))
	return n
}

func TestBridge_SpawnFailureIsShownOnAttach(t *testing.T) {
	var h *harness
	h = newHarness(t, starterFunc(func(ctx context.Context, id string, cols, rows int) (session.Info, error) {
		return h.manager.Create(ctx, session.CreateRequest{SessionID: id, AgentID: "claude", WorkspacePath: "/repo"})
	}))
	h.spawner.Err = errors.New(`exec: "claude": executable file not found in $PATH`)

	conn := h.dial(t, "s3")

	mt, data := readFrame(t, conn)
	assert.Equal(t, gorillaws.BinaryMessage, mt)
	assert.Contains(t, string(data), "Failed to start claude. Make sure it is installed and in PATH.")
	assert.Contains(t, string(data), "executable file not found")

	state := readNotice(t, conn)
	assert.Equal(t, session.EventState, state.Kind)
	assert.Equal(t, session.StateFailed, state.State)

	exited := readNotice(t, conn)
	assert.Equal(t, session.EventExited, exited.Kind)
	require.NotNil(t, exited.Exit)
	assert.Equal(t, session.OutcomeNeedsAttention, exited.Exit.Outcome)
}

func TestBridge_QuickExitBeforeAttachIsReplayed(t *testing.T) {
	h := newHarness(t, nil)
	proc := h.start(t, "s1")

	proc.Emit("error: invalid API key\r\n")
	proc.Exit(1)
	require.Eventually(t, func() bool {
		info, ok := h.manager.Get("s1")
		return ok && info.State == session.StateExitedNeedsAttention
	}, 2*time.Second, 5*time.Millisecond)

	conn := h.dial(t, "s1")

	mt, data := readFrame(t, conn)
	assert.Equal(t, gorillaws.BinaryMessage, mt)
	assert.True(t, strings.HasPrefix(string(data), "error: invalid API key\r\n"))
	assert.Contains(t, string(data), "session kept open for debugging")

	state := readNotice(t, conn)
	assert.Equal(t, session.StateExitedNeedsAttention, state.State)
	exited := readNotice(t, conn)
	assert.Equal(t, session.EventExited, exited.Kind)
	assert.Equal(t, 1, exited.Exit.Code)
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin", "", "example.com", true},
		{"localhost", "http://localhost:3000", "127.0.0.1:38421", true},
		{"loopback ip", "http://127.0.0.1:5173", "example.com", true},
		{"ipv6 loopback", "http://[::1]:3000", "example.com", true},
		{"same host", "https://example.com", "example.com:38421", true},
		{"cross origin", "https://evil.com", "example.com", false},
		{"malformed", "not-a-url", "example.com", false},
		{"empty host", "https://example.com", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{Header: http.Header{}, Host: tt.host, URL: &url.URL{Host: tt.host}}
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkOrigin(r))
		})
	}
}
