// Package terminal bridges a browser terminal to a session's PTY over a
// binary WebSocket.
//
// Client frames are raw input, except frames whose first byte is 0x01: the
// rest is a JSON {cols, rows} resize. Server frames are raw output (binary)
// and JSON state notices (text).
package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kandev/agenthost/internal/common/logger"
	"github.com/kandev/agenthost/internal/session"
	"github.com/kandev/agenthost/internal/session/store"
)

const (
	resizeCommandByte = 0x01
	writeWait         = 10 * time.Second
)

// ResizePayload is the JSON body of a resize frame.
type ResizePayload struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// Notice is sent as a text frame when the session changes state.
type Notice struct {
	Kind  session.EventKind `json:"kind"`
	State session.State     `json:"state,omitempty"`
	Exit  *session.ExitInfo `json:"exit,omitempty"`
}

// Runtime is the session I/O the bridge needs.
type Runtime interface {
	Get(id string) (session.Info, bool)
	Subscribe(id string) (<-chan session.Event, func(), error)
	Send(id string, data []byte) error
	Resize(id string, cols, rows uint16) error
}

// Starter starts a stored session that has no process yet.
type Starter interface {
	StartSession(ctx context.Context, id string, cols, rows int) (session.Info, error)
}

type Handler struct {
	runtime Runtime
	starter Starter
	logger  *logger.Logger
}

// NewHandler creates the bridge. starter may be nil, in which case only
// sessions with a process can be attached.
func NewHandler(runtime Runtime, starter Starter, log *logger.Logger) *Handler {
	return &Handler{
		runtime: runtime,
		starter: starter,
		logger:  log.WithFields(zap.String("component", "terminal-bridge")),
	}
}

// RegisterRoutes mounts GET /api/v1/sessions/:id/terminal.
func RegisterRoutes(router *gin.Engine, h *Handler) {
	router.GET("/api/v1/sessions/:id/terminal", h.HandleTerminalWS)
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     checkOrigin,
}

// checkOrigin accepts non-browser clients, loopback pages and same-host pages.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	originHost := u.Hostname()
	if originHost == "localhost" {
		return true
	}
	if ip := net.ParseIP(originHost); ip != nil && ip.IsLoopback() {
		return true
	}

	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host != "" && originHost == host
}

// HandleTerminalWS attaches a WebSocket to a session, starting the session
// first when it is stored but not running. Optional cols and rows query
// parameters size a process started here.
func (h *Handler) HandleTerminalWS(c *gin.Context) {
	id := c.Param("id")
	if err := h.ensureRunning(c, id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, store.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	events, unsubscribe, err := h.runtime.Subscribe(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		unsubscribe()
		h.logger.Error("failed to upgrade to WebSocket", zap.String("session_id", id), zap.Error(err))
		return
	}
	h.logger.Info("terminal WebSocket connected",
		zap.String("session_id", id),
		zap.String("remote_addr", c.Request.RemoteAddr))

	b := &bridge{id: id, conn: conn, runtime: h.runtime, logger: h.logger}
	b.run(events, unsubscribe)
}

func (h *Handler) ensureRunning(c *gin.Context, id string) error {
	if _, ok := h.runtime.Get(id); ok {
		return nil
	}
	if h.starter == nil {
		return session.ErrSessionNotFound
	}
	cols, _ := strconv.Atoi(c.Query("cols"))
	rows, _ := strconv.Atoi(c.Query("rows"))
	_, err := h.starter.StartSession(c.Request.Context(), id, cols, rows)
	return err
}

type bridge struct {
	id      string
	conn    *gorillaws.Conn
	runtime Runtime
	logger  *logger.Logger

	writeMu sync.Mutex
}

func (b *bridge) write(messageType int, data []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return b.conn.WriteMessage(messageType, data)
}

func (b *bridge) run(events <-chan session.Event, unsubscribe func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.pump(events)
	}()

	b.readInput()
	unsubscribe()
	<-done
	_ = b.conn.Close()
	b.logger.Info("terminal WebSocket disconnected", zap.String("session_id", b.id))
}

// pump forwards session events until the stream ends, then closes the socket
// so readInput returns.
func (b *bridge) pump(events <-chan session.Event) {
	for ev := range events {
		var err error
		switch ev.Kind {
		case session.EventOutput:
			err = b.write(gorillaws.BinaryMessage, ev.Data)
		default:
			data, _ := json.Marshal(Notice{Kind: ev.Kind, State: ev.State, Exit: ev.Exit})
			err = b.write(gorillaws.TextMessage, data)
		}
		if err != nil {
			b.logger.Debug("WebSocket write error", zap.String("session_id", b.id), zap.Error(err))
			_ = b.conn.Close()
			return
		}
	}
	b.writeMu.Lock()
	_ = b.conn.WriteControl(gorillaws.CloseMessage,
		gorillaws.FormatCloseMessage(gorillaws.CloseNormalClosure, "session ended"),
		time.Now().Add(writeWait))
	b.writeMu.Unlock()
	_ = b.conn.Close()
}

func (b *bridge) readInput() {
	for {
		messageType, data, err := b.conn.ReadMessage()
		if err != nil {
			if !gorillaws.IsCloseError(err, gorillaws.CloseNormalClosure, gorillaws.CloseGoingAway) {
				b.logger.Debug("WebSocket read error", zap.String("session_id", b.id), zap.Error(err))
			}
			return
		}
		if messageType != gorillaws.BinaryMessage && messageType != gorillaws.TextMessage || len(data) == 0 {
			continue
		}

		if data[0] == resizeCommandByte {
			b.resize(data[1:])
			continue
		}
		if err := b.runtime.Send(b.id, data); err != nil {
			b.logger.Debug("session input rejected", zap.String("session_id", b.id), zap.Error(err))
			return
		}
	}
}

func (b *bridge) resize(data []byte) {
	var p ResizePayload
	if err := json.Unmarshal(data, &p); err != nil {
		b.logger.Warn("failed to parse resize command", zap.String("session_id", b.id), zap.Error(err))
		return
	}
	if p.Cols == 0 || p.Rows == 0 {
		b.logger.Warn("invalid resize dimensions",
			zap.String("session_id", b.id),
			zap.Uint16("cols", p.Cols),
			zap.Uint16("rows", p.Rows))
		return
	}
	if err := b.runtime.Resize(b.id, p.Cols, p.Rows); err != nil {
		b.logger.Debug("resize failed", zap.String("session_id", b.id), zap.Error(err))
	}
}
