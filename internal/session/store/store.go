// Package store persists the UI-facing session records and the active
// session of each workspace.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session record not found")
	ErrSessionExists   = errors.New("session record already exists")
)

// Session is the persisted half of a session. The running process, if any,
// is owned by the session manager under the same id.
type Session struct {
	ID            string    `db:"id" json:"id"`
	WorkspacePath string    `db:"workspace_path" json:"workspacePath"`
	AgentID       string    `db:"agent_id" json:"agentId"`
	DisplayName   string    `db:"display_name" json:"displayName"`
	Initialized   bool      `db:"initialized" json:"initialized"`
	Position      int       `db:"position" json:"position"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// Repository stores sessions per workspace, in creation order.
type Repository interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, workspacePath string) ([]*Session, error)
	ListWorkspaces(ctx context.Context) ([]string, error)
	MarkInitialized(ctx context.Context, id string) error
	RenameSession(ctx context.Context, id, displayName string) error
	DeleteSession(ctx context.Context, id string) error

	// ActiveSession returns "" when the workspace has no active session.
	ActiveSession(ctx context.Context, workspacePath string) (string, error)
	SetActiveSession(ctx context.Context, workspacePath, sessionID string) error

	Close() error
}
