// Package handlers serves the /api/v1 HTTP routes.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	agentdetector "github.com/kandev/agenthost/internal/agents/detector"
	agentmodels "github.com/kandev/agenthost/internal/agents/models"
	appdetector "github.com/kandev/agenthost/internal/apps/detector"
	"github.com/kandev/agenthost/internal/common/logger"
	"github.com/kandev/agenthost/internal/events/bus"
	"github.com/kandev/agenthost/internal/launch"
	"github.com/kandev/agenthost/internal/session"
	"github.com/kandev/agenthost/internal/session/service"
)

// AppDetector finds installed applications.
type AppDetector interface {
	Detect(ctx context.Context) *appdetector.Snapshot
	Refresh(ctx context.Context) *appdetector.Snapshot
	Icon(ctx context.Context, identifier string) (string, bool)
}

// Launcher opens paths in applications.
type Launcher interface {
	Open(ctx context.Context, path, identifier string, opts launch.Options) error
}

// AgentDetector reports installed agent CLIs.
type AgentDetector interface {
	DetectAll(ctx context.Context, custom []agentmodels.CustomAgent, opts agentdetector.DetectOptions) *agentmodels.AgentCliStatus
	DetectOne(ctx context.Context, agentID string, custom *agentmodels.CustomAgent) agentmodels.AgentCliInfo
}

// Sessions is the runtime half of a session.
type Sessions interface {
	Get(id string) (session.Info, bool)
	List() []session.Info
	Send(id string, data []byte) error
	Resize(id string, cols, rows uint16) error
	Stop(ctx context.Context, id string) error
}

// Deps are the components behind the routes.
type Deps struct {
	Apps      AppDetector
	Launcher  Launcher
	Agents    AgentDetector
	Sessions  Sessions
	Workspace *service.Service
	EventBus  bus.EventBus
	// CustomAgents returns the agents loaded from the custom agents file.
	CustomAgents func() []agentmodels.CustomAgent
}

type Handlers struct {
	deps   Deps
	logger *logger.Logger
}

func NewHandlers(deps Deps, log *logger.Logger) *Handlers {
	return &Handlers{
		deps:   deps,
		logger: log.WithFields(zap.String("component", "api-handlers")),
	}
}

// RegisterRoutes mounts every /api/v1 route.
func RegisterRoutes(router *gin.Engine, deps Deps, log *logger.Logger) *Handlers {
	h := NewHandlers(deps, log)
	api := router.Group("/api/v1")

	api.GET("/apps", h.httpListApplications)
	api.POST("/apps/refresh", h.httpRefreshApplications)
	api.POST("/apps/open", h.httpOpenWith)
	api.GET("/apps/:identifier/icon", h.httpApplicationIcon)

	api.POST("/agents/status", h.httpAgentStatus)
	api.POST("/agents/:id/detect", h.httpDetectAgent)

	api.GET("/workspaces/sessions", h.httpWorkspaceSessions)
	api.POST("/workspaces/sessions", h.httpNewWorkspaceSession)

	api.GET("/sessions", h.httpListSessions)
	api.POST("/sessions", h.httpCreateSession)
	api.GET("/sessions/:id", h.httpGetSession)
	api.POST("/sessions/:id/start", h.httpStartSession)
	api.POST("/sessions/:id/activate", h.httpActivateSession)
	api.PATCH("/sessions/:id", h.httpRenameSession)
	api.DELETE("/sessions/:id", h.httpCloseSession)
	api.POST("/sessions/:id/input", h.httpSendInput)
	api.POST("/sessions/:id/resize", h.httpResizeSession)
	api.POST("/sessions/:id/stop", h.httpStopSession)
	return h
}

func (h *Handlers) customAgents(extra []agentmodels.CustomAgent) []agentmodels.CustomAgent {
	var base []agentmodels.CustomAgent
	if h.deps.CustomAgents != nil {
		base = h.deps.CustomAgents()
	}
	return catalogMerge(base, extra)
}

func (h *Handlers) publish(ctx context.Context, subject, eventType string, data map[string]any) {
	if h.deps.EventBus == nil {
		return
	}
	if err := h.deps.EventBus.Publish(ctx, subject, bus.NewEvent(eventType, "api", data)); err != nil {
		h.logger.Warn("failed to publish event", zap.String("event_type", eventType), zap.Error(err))
	}
}
