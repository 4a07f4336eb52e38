// Package session runs interactive CLI agent conversations in pseudo-terminals.
package session

import (
	"errors"
	"time"

	"github.com/kandev/agenthost/internal/agents/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when a session id already has a live process.
	ErrSessionExists   = errors.New("session already running")
	ErrCommandRequired = errors.New("command is required")
)

// State is the runtime state of a session.
type State string

const (
	StateUninitialized        State = "uninitialized"
	StateStarting             State = "starting"
	StateRunning              State = "running"
	StateExitedClean          State = "exited_clean"
	StateExitedNeedsAttention State = "exited_needs_attention"
	StateStopped              State = "stopped"
	StateFailed               State = "failed"
)

// Live reports whether the state still owns an OS process.
func (s State) Live() bool {
	return s == StateStarting || s == StateRunning
}

// ExitInfo describes how a session's process ended.
type ExitInfo struct {
	Code    int           `json:"code"`
	Runtime time.Duration `json:"runtime"`
	Outcome Outcome       `json:"outcome"`
	Error   string        `json:"error,omitempty"`
}

// Info is a point-in-time view of a session.
type Info struct {
	ID            string             `json:"id"`
	AgentID       string             `json:"agentId"`
	WorkspacePath string             `json:"workspacePath"`
	Environment   models.Environment `json:"environment"`
	Command       string             `json:"command"`
	State         State              `json:"state"`
	Pid           int                `json:"pid,omitempty"`
	StartedAt     time.Time          `json:"startedAt,omitempty"`
	Exit          *ExitInfo          `json:"exit,omitempty"`
}

// EventKind identifies the payload of an Event.
type EventKind string

const (
	EventOutput EventKind = "output"
	EventState  EventKind = "state"
	EventExited EventKind = "exited"
)

// Event is one item of a session stream.
type Event struct {
	SessionID string    `json:"sessionId"`
	Kind      EventKind `json:"kind"`
	Data      []byte    `json:"data,omitempty"`
	State     State     `json:"state,omitempty"`
	Exit      *ExitInfo `json:"exit,omitempty"`
}
