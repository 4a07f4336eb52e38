// Package dto holds the request and response bodies of the HTTP API.
package dto

import (
	"time"

	agentmodels "github.com/kandev/agenthost/internal/agents/models"
	appmodels "github.com/kandev/agenthost/internal/apps/models"
	"github.com/kandev/agenthost/internal/launch"
	"github.com/kandev/agenthost/internal/session"
)

type ApplicationsResponse struct {
	Applications []appmodels.DetectedApplication `json:"applications"`
	ScannedAt    time.Time                       `json:"scannedAt"`
}

type OpenWithRequest struct {
	Path          string   `json:"path" binding:"required"`
	Identifier    string   `json:"identifier" binding:"required"`
	Line          int      `json:"line,omitempty"`
	WorkspacePath string   `json:"workspacePath,omitempty"`
	OpenFiles     []string `json:"openFiles,omitempty"`
	ActiveFile    string   `json:"activeFile,omitempty"`
}

// Options converts the editor context of the request.
func (r OpenWithRequest) Options() launch.Options {
	return launch.Options{
		Line:          r.Line,
		WorkspacePath: r.WorkspacePath,
		OpenFiles:     r.OpenFiles,
		ActiveFile:    r.ActiveFile,
	}
}

type IconResponse struct {
	Identifier string `json:"identifier"`
	DataURL    string `json:"dataUrl"`
}

type AgentStatusRequest struct {
	CustomAgents []agentmodels.CustomAgent `json:"customAgents,omitempty"`
	IncludeWSL   bool                      `json:"includeWsl"`
}

type DetectAgentRequest struct {
	CustomAgent *agentmodels.CustomAgent `json:"customAgent,omitempty"`
}

type CreateWorkspaceSessionRequest struct {
	WorkspacePath string `json:"workspacePath" binding:"required"`
	AgentID       string `json:"agentId,omitempty"`
}

type CreateSessionRequest struct {
	WorkspacePath string `json:"workspacePath" binding:"required"`
	AgentID       string `json:"agentId,omitempty"`
	Cols          int    `json:"cols,omitempty"`
	Rows          int    `json:"rows,omitempty"`
}

type StartSessionRequest struct {
	Cols int `json:"cols,omitempty"`
	Rows int `json:"rows,omitempty"`
}

type RenameSessionRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
}

type InputRequest struct {
	Data string `json:"data"`
}

type ResizeRequest struct {
	Cols uint16 `json:"cols" binding:"required"`
	Rows uint16 `json:"rows" binding:"required"`
}

type SessionResponse struct {
	Session session.Info `json:"session"`
}

type SessionsResponse struct {
	Sessions []session.Info `json:"sessions"`
}
