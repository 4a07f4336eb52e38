package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	agentcatalog "github.com/kandev/agenthost/internal/agents/catalog"
	agentdetector "github.com/kandev/agenthost/internal/agents/detector"
	agentmodels "github.com/kandev/agenthost/internal/agents/models"
	"github.com/kandev/agenthost/internal/api/dto"
	"github.com/kandev/agenthost/internal/events"
)

func catalogMerge(base, extra []agentmodels.CustomAgent) []agentmodels.CustomAgent {
	return agentcatalog.MergeCustom(base, extra)
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *Handlers) httpAgentStatus(c *gin.Context) {
	var req dto.AgentStatusRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := agentcatalog.ValidateCustom(req.CustomAgents); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := h.deps.Agents.DetectAll(c.Request.Context(), h.customAgents(req.CustomAgents),
		agentdetector.DetectOptions{IncludeWSL: req.IncludeWSL})
	h.publish(c.Request.Context(), events.AgentsRefreshedSubject, events.AgentsRefreshed, map[string]any{
		"count":       len(status.Agents),
		"include_wsl": req.IncludeWSL,
	})
	c.JSON(http.StatusOK, status)
}

func (h *Handlers) httpDetectAgent(c *gin.Context) {
	var req dto.DetectAgentRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	id := c.Param("id")
	custom := req.CustomAgent
	if custom == nil {
		base, _ := agentmodels.SplitWSLID(id)
		for _, a := range h.customAgents(nil) {
			if a.ID == base {
				custom = &a
				break
			}
		}
	}
	c.JSON(http.StatusOK, h.deps.Agents.DetectOne(c.Request.Context(), id, custom))
}
