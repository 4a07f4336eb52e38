// Package mcpserver exposes application detection, agent detection and
// open-with to MCP clients over SSE (/sse) and Streamable HTTP (/mcp).
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	agentdetector "github.com/kandev/agenthost/internal/agents/detector"
	agentmodels "github.com/kandev/agenthost/internal/agents/models"
	appdetector "github.com/kandev/agenthost/internal/apps/detector"
	"github.com/kandev/agenthost/internal/common/logger"
	"github.com/kandev/agenthost/internal/launch"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

// Deps are the components the tools call.
type Deps struct {
	Apps interface {
		Detect(ctx context.Context) *appdetector.Snapshot
	}
	Launcher interface {
		Open(ctx context.Context, path, identifier string, opts launch.Options) error
	}
	Agents interface {
		DetectAll(ctx context.Context, custom []agentmodels.CustomAgent, opts agentdetector.DetectOptions) *agentmodels.AgentCliStatus
	}
	CustomAgents func() []agentmodels.CustomAgent
}

// Config holds the listen port. Port 0 picks a free port.
type Config struct {
	Port int
}

// Server owns the HTTP listener of both transports.
type Server struct {
	cfg        Config
	mcp        *server.MCPServer
	sse        *server.SSEServer
	streamable *server.StreamableHTTPServer
	httpServer *http.Server
	logger     *logger.Logger

	mu      sync.Mutex
	running bool
}

// New builds the MCP server and registers its tools.
func New(cfg Config, deps Deps, log *logger.Logger) *Server {
	log = log.WithFields(zap.String("component", "mcp-server"))
	mcpServer := server.NewMCPServer("agenthost", Version, server.WithToolCapabilities(true))
	registerTools(mcpServer, deps, log)
	return &Server{cfg: cfg, mcp: mcpServer, logger: log}
}

// Start listens and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("server already running")
	}

	s.sse = server.NewSSEServer(s.mcp)
	s.streamable = server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath("/mcp"))

	mux := http.NewServeMux()
	mux.Handle("/sse", s.sse.SSEHandler())
	mux.Handle("/message", s.sse.MessageHandler())
	mux.Handle("/mcp", s.streamable)

	var lc net.ListenConfig
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.Port)
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.cfg.Port = tcpAddr.Port
	}

	s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	s.running = true
	go func() {
		s.logger.Info("MCP server listening",
			zap.Int("port", s.cfg.Port),
			zap.String("sse_endpoint", "/sse"),
			zap.String("streamable_http_endpoint", "/mcp"))
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("MCP server error", zap.Error(err))
		}
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()
	return nil
}

// Stop shuts down the listener and both transports.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown MCP HTTP server: %w", err)
	}
	if err := s.sse.Shutdown(ctx); err != nil {
		s.logger.Warn("failed to shutdown SSE server", zap.Error(err))
	}
	if err := s.streamable.Shutdown(ctx); err != nil {
		s.logger.Warn("failed to shutdown Streamable HTTP server", zap.Error(err))
	}
	return nil
}

// Port returns the bound port once started.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Port
}

// Provide starts the server and returns a cleanup that stops it once.
func Provide(ctx context.Context, cfg Config, deps Deps, log *logger.Logger) (*Server, func() error, error) {
	srv := New(cfg, deps, log)
	if err := srv.Start(ctx); err != nil {
		return nil, nil, err
	}
	var once sync.Once
	cleanup := func() error {
		var err error
		once.Do(func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = srv.Stop(stopCtx)
		})
		return err
	}
	return srv, cleanup, nil
}
