package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/agenthost/internal/api/dto"
	appdetector "github.com/kandev/agenthost/internal/apps/detector"
	"github.com/kandev/agenthost/internal/events"
	"github.com/kandev/agenthost/internal/launch"
)

func applicationsResponse(snap *appdetector.Snapshot) dto.ApplicationsResponse {
	return dto.ApplicationsResponse{Applications: snap.Apps, ScannedAt: snap.ScannedAt}
}

func (h *Handlers) httpListApplications(c *gin.Context) {
	c.JSON(http.StatusOK, applicationsResponse(h.deps.Apps.Detect(c.Request.Context())))
}

func (h *Handlers) httpRefreshApplications(c *gin.Context) {
	snap := h.deps.Apps.Refresh(c.Request.Context())
	h.publish(c.Request.Context(), events.AppsRefreshedSubject, events.AppsRefreshed, map[string]any{
		"count": len(snap.Apps),
	})
	c.JSON(http.StatusOK, applicationsResponse(snap))
}

func (h *Handlers) httpOpenWith(c *gin.Context) {
	var req dto.OpenWithRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	err := h.deps.Launcher.Open(c.Request.Context(), req.Path, req.Identifier, req.Options())
	switch {
	case errors.Is(err, launch.ErrApplicationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		h.logger.Error("failed to open path", zap.String("identifier", req.Identifier), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (h *Handlers) httpApplicationIcon(c *gin.Context) {
	identifier := c.Param("identifier")
	icon, ok := h.deps.Apps.Icon(c.Request.Context(), identifier)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, dto.IconResponse{Identifier: identifier, DataURL: icon})
}
