package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kandev/agenthost/internal/api/handlers"
	"github.com/kandev/agenthost/internal/api/terminal"
	"github.com/kandev/agenthost/internal/common/config"
	"github.com/kandev/agenthost/internal/common/httpmw"
	"github.com/kandev/agenthost/internal/common/lockfile"
	"github.com/kandev/agenthost/internal/common/logger"
	"github.com/kandev/agenthost/internal/common/tracing"
	"github.com/kandev/agenthost/internal/db"
	"github.com/kandev/agenthost/internal/events"
	"github.com/kandev/agenthost/internal/mcpserver"
	"github.com/kandev/agenthost/internal/session"
	"github.com/kandev/agenthost/internal/session/service"
	"github.com/kandev/agenthost/internal/session/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, terminal bridge and MCP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	lock, err := lockfile.Acquire(cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// cleanups run in reverse order on shutdown.
	var cleanups []func() error
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](); err != nil {
				log.Warn("cleanup failed", zap.Error(err))
			}
		}
	}()

	pool, closePool, err := db.Provide(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	cleanups = append(cleanups, closePool)

	repo, closeRepo, err := store.Provide(pool)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	cleanups = append(cleanups, closeRepo)

	provided, closeBus, err := events.Provide(cfg, log)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, closeBus)

	comps, err := buildComponents(cfg, log)
	if err != nil {
		return err
	}
	go func() {
		snap := comps.apps.Detect(ctx)
		log.Info("initial application scan complete", zap.Int("count", len(snap.Apps)))
	}()

	manager := session.NewManager(comps.env, session.PTYSpawner{}, sessionConfig(cfg.Session), log)
	svc := service.NewService(repo, manager, provided.Bus, service.Options{CustomAgents: comps.custom.Get}, log)

	if cfg.MCP.Enabled {
		_, stopMCP, err := mcpserver.Provide(ctx, mcpserver.Config{Port: cfg.MCP.Port}, mcpserver.Deps{
			Apps:         comps.apps,
			Launcher:     comps.dispatcher,
			Agents:       comps.agents,
			CustomAgents: comps.custom.Get,
		}, log)
		if err != nil {
			return fmt.Errorf("starting MCP server: %w", err)
		}
		cleanups = append(cleanups, stopMCP)
	}

	router := newRouter(cfg, log, handlers.Deps{
		Apps:         comps.apps,
		Launcher:     comps.dispatcher,
		Agents:       comps.agents,
		Sessions:     manager,
		Workspace:    svc,
		EventBus:     provided.Bus,
		CustomAgents: comps.custom.Get,
	}, terminal.NewHandler(manager, svc, log))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeoutDuration(),
		// WriteTimeout stays unset: terminal WebSockets are long-lived.
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	}

	log.Info("shutting down agenthost")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := manager.StopAll(shutdownCtx); err != nil {
		log.Error("failed to stop sessions", zap.Error(err))
	}
	svc.Close()
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Warn("tracing shutdown error", zap.Error(err))
	}
	log.Info("agenthost stopped")
	return nil
}

func newRouter(cfg *config.Config, log *logger.Logger, deps handlers.Deps, term *terminal.Handler) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(httpmw.Recovery(log), httpmw.RequestLogger(log, "api"), httpmw.CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "agenthost"})
	})
	handlers.RegisterRoutes(router, deps, log)
	terminal.RegisterRoutes(router, term)
	return router
}

func sessionConfig(c config.SessionConfig) session.Config {
	return session.Config{
		MinRuntimeForAutoClose: c.MinRuntimeForAutoClose,
		TailBufferBytes:        c.TailBufferBytes,
		TailKeepBytes:          c.TailKeepBytes,
		ResizeDebounce:         c.ResizeDebounce,
		StopGracePeriod:        c.StopGracePeriod,
		DefaultCols:            c.DefaultCols,
		DefaultRows:            c.DefaultRows,
		NotFoundSignature:      c.NotFoundSignature,
		Shell:                  c.Shell,
		ScrollbackBytes:        c.ScrollbackBytes,
		SubscriberTimeout:      c.SubscriberTimeout,
	}
}
