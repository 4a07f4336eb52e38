package handlers

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/agenthost/internal/agents/catalog"
	"github.com/kandev/agenthost/internal/api/dto"
	"github.com/kandev/agenthost/internal/session"
	"github.com/kandev/agenthost/internal/session/service"
	"github.com/kandev/agenthost/internal/session/store"
)

func (h *Handlers) sessionError(c *gin.Context, action string, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, store.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, catalog.ErrAgentNotFound),
		errors.Is(err, service.ErrWorkspaceRequired),
		errors.Is(err, session.ErrCommandRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrSessionExists), errors.Is(err, store.ErrSessionExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("failed to "+action, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + action})
	}
}

func (h *Handlers) httpWorkspaceSessions(c *gin.Context) {
	ws, err := h.deps.Workspace.EnsureWorkspace(c.Request.Context(), c.Query("path"))
	if err != nil {
		h.sessionError(c, "load workspace", err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

func (h *Handlers) httpNewWorkspaceSession(c *gin.Context) {
	var req dto.CreateWorkspaceSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if _, err := h.deps.Workspace.NewSession(c.Request.Context(), req.WorkspacePath, req.AgentID); err != nil {
		h.sessionError(c, "create session", err)
		return
	}
	ws, err := h.deps.Workspace.Workspace(c.Request.Context(), req.WorkspacePath)
	if err != nil {
		h.sessionError(c, "load workspace", err)
		return
	}
	c.JSON(http.StatusCreated, ws)
}

func (h *Handlers) httpListSessions(c *gin.Context) {
	list := h.deps.Sessions.List()
	sort.Slice(list, func(i, j int) bool { return list[i].StartedAt.Before(list[j].StartedAt) })
	c.JSON(http.StatusOK, dto.SessionsResponse{Sessions: list})
}

// httpCreateSession adds a session to the workspace and starts it.
func (h *Handlers) httpCreateSession(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	rec, err := h.deps.Workspace.NewSession(c.Request.Context(), req.WorkspacePath, req.AgentID)
	if err != nil {
		h.sessionError(c, "create session", err)
		return
	}
	info, err := h.deps.Workspace.StartSession(c.Request.Context(), rec.ID, req.Cols, req.Rows)
	if err != nil {
		h.sessionError(c, "start session", err)
		return
	}
	c.JSON(http.StatusCreated, dto.SessionResponse{Session: info})
}

func (h *Handlers) httpGetSession(c *gin.Context) {
	info, ok := h.deps.Sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": session.ErrSessionNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.SessionResponse{Session: info})
}

func (h *Handlers) httpStartSession(c *gin.Context) {
	var req dto.StartSessionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	info, err := h.deps.Workspace.StartSession(c.Request.Context(), c.Param("id"), req.Cols, req.Rows)
	if err != nil {
		h.sessionError(c, "start session", err)
		return
	}
	c.JSON(http.StatusOK, dto.SessionResponse{Session: info})
}

func (h *Handlers) httpActivateSession(c *gin.Context) {
	if err := h.deps.Workspace.Activate(c.Request.Context(), c.Param("id")); err != nil {
		h.sessionError(c, "activate session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) httpRenameSession(c *gin.Context) {
	var req dto.RenameSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.deps.Workspace.Rename(c.Request.Context(), c.Param("id"), req.DisplayName); err != nil {
		h.sessionError(c, "rename session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) httpCloseSession(c *gin.Context) {
	if err := h.deps.Workspace.CloseSession(c.Request.Context(), c.Param("id")); err != nil {
		h.sessionError(c, "close session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) httpSendInput(c *gin.Context) {
	var req dto.InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.deps.Sessions.Send(c.Param("id"), []byte(req.Data)); err != nil {
		h.sessionError(c, "send input", err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *Handlers) httpResizeSession(c *gin.Context) {
	var req dto.ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.deps.Sessions.Resize(c.Param("id"), req.Cols, req.Rows); err != nil {
		h.sessionError(c, "resize session", err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *Handlers) httpStopSession(c *gin.Context) {
	if err := h.deps.Sessions.Stop(c.Request.Context(), c.Param("id")); err != nil {
		h.sessionError(c, "stop session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
