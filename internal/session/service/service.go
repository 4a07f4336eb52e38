// Package service keeps the per-workspace session list in step with the
// running agent processes.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/agenthost/internal/agents/catalog"
	"github.com/kandev/agenthost/internal/agents/models"
	"github.com/kandev/agenthost/internal/common/logger"
	"github.com/kandev/agenthost/internal/events"
	"github.com/kandev/agenthost/internal/events/bus"
	"github.com/kandev/agenthost/internal/session"
	"github.com/kandev/agenthost/internal/session/store"
)

// DefaultAgentID is the agent a workspace's first session runs.
const DefaultAgentID = "claude"

const eventSource = "session-service"

var ErrWorkspaceRequired = errors.New("workspace path is required")

// Runtime is the part of session.Manager the service drives.
type Runtime interface {
	Create(ctx context.Context, req session.CreateRequest) (session.Info, error)
	Stop(ctx context.Context, id string) error
	Get(id string) (session.Info, bool)
	Listen(l session.Listener) (cancel func())
}

// Options configures a Service.
type Options struct {
	// CustomAgents returns the user-defined agents to resolve ids against.
	CustomAgents func() []models.CustomAgent
	// DefaultAgentID overrides DefaultAgentID.
	DefaultAgentID string
}

// SessionView is a stored session with its runtime state.
type SessionView struct {
	*store.Session
	State session.State     `json:"state"`
	Exit  *session.ExitInfo `json:"exit,omitempty"`
}

// Workspace lists a workspace's sessions in creation order.
type Workspace struct {
	Path            string         `json:"path"`
	ActiveSessionID string         `json:"activeSessionId"`
	Sessions        []*SessionView `json:"sessions"`
}

// Service applies the workspace policy: every workspace has at least one
// session and exactly one of them is active.
type Service struct {
	repo     store.Repository
	runtime  Runtime
	eventBus bus.EventBus
	logger   *logger.Logger
	opts     Options

	// mu serialises changes to a workspace's session list.
	mu       sync.Mutex
	closing  sync.WaitGroup
	unlisten func()
}

// NewService creates the service and starts following runtime exits.
func NewService(repo store.Repository, runtime Runtime, eventBus bus.EventBus, opts Options, log *logger.Logger) *Service {
	if opts.DefaultAgentID == "" {
		opts.DefaultAgentID = DefaultAgentID
	}
	s := &Service{
		repo:     repo,
		runtime:  runtime,
		eventBus: eventBus,
		logger:   log.WithFields(zap.String("component", "session-service")),
		opts:     opts,
	}
	s.unlisten = runtime.Listen(s.handleRuntimeEvent)
	return s
}

// Close stops following runtime events and waits for pending auto-closes.
func (s *Service) Close() {
	s.unlisten()
	s.closing.Wait()
}

func (s *Service) customAgents() []models.CustomAgent {
	if s.opts.CustomAgents == nil {
		return nil
	}
	return s.opts.CustomAgents()
}

// EnsureWorkspace returns the workspace, creating its first session when it
// has none and repairing a missing or stale active selection.
func (s *Service) EnsureWorkspace(ctx context.Context, workspacePath string) (*Workspace, error) {
	if workspacePath == "" {
		return nil, ErrWorkspaceRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLocked(ctx, workspacePath); err != nil {
		return nil, err
	}
	return s.workspace(ctx, workspacePath)
}

func (s *Service) ensureLocked(ctx context.Context, workspacePath string) error {
	sessions, err := s.repo.ListSessions(ctx, workspacePath)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		rec, err := s.createRecord(ctx, workspacePath, s.opts.DefaultAgentID)
		if err != nil {
			return err
		}
		return s.repo.SetActiveSession(ctx, workspacePath, rec.ID)
	}

	active, err := s.repo.ActiveSession(ctx, workspacePath)
	if err != nil {
		return err
	}
	if indexOf(sessions, active) < 0 {
		return s.repo.SetActiveSession(ctx, workspacePath, sessions[0].ID)
	}
	return nil
}

// NewSession adds a session running agentID to the workspace and makes it active.
func (s *Service) NewSession(ctx context.Context, workspacePath, agentID string) (*store.Session, error) {
	if workspacePath == "" {
		return nil, ErrWorkspaceRequired
	}
	if agentID == "" {
		agentID = s.opts.DefaultAgentID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.createRecord(ctx, workspacePath, agentID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetActiveSession(ctx, workspacePath, rec.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

// Activate makes a session the visible one of its workspace.
func (s *Service) Activate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.SetActiveSession(ctx, rec.WorkspacePath, id)
}

// Rename changes a session's display name.
func (s *Service) Rename(ctx context.Context, id, name string) error {
	return s.repo.RenameSession(ctx, id, name)
}

// CloseSession stops a session's process and removes it. When it was active
// the neighbour at the same position becomes active; closing the last
// session of a workspace replaces it with a fresh one.
func (s *Service) CloseSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked(ctx, id)
}

func (s *Service) closeLocked(ctx context.Context, id string) error {
	rec, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return err
	}
	workspacePath := rec.WorkspacePath

	before, err := s.repo.ListSessions(ctx, workspacePath)
	if err != nil {
		return err
	}
	idx := indexOf(before, id)
	active, err := s.repo.ActiveSession(ctx, workspacePath)
	if err != nil {
		return err
	}

	if err := s.runtime.Stop(ctx, id); err != nil {
		s.logger.Warn("failed to stop session process", zap.String("session_id", id), zap.Error(err))
	}
	if err := s.repo.DeleteSession(ctx, id); err != nil {
		return err
	}
	s.publishLifecycle(ctx, events.SessionClosed, rec)

	remaining, err := s.repo.ListSessions(ctx, workspacePath)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		fresh, err := s.createRecord(ctx, workspacePath, s.opts.DefaultAgentID)
		if err != nil {
			return err
		}
		return s.repo.SetActiveSession(ctx, workspacePath, fresh.ID)
	}
	if active == id || active == "" {
		next := remaining[min(max(idx, 0), len(remaining)-1)]
		return s.repo.SetActiveSession(ctx, workspacePath, next.ID)
	}
	return nil
}

// StartSession spawns the process of a stored session, resuming the agent's
// conversation when the session has run before. A session that is already
// running is returned as is.
func (s *Service) StartSession(ctx context.Context, id string, cols, rows int) (session.Info, error) {
	rec, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return session.Info{}, err
	}

	info, err := s.runtime.Create(ctx, session.CreateRequest{
		SessionID:     rec.ID,
		AgentID:       rec.AgentID,
		WorkspacePath: rec.WorkspacePath,
		Initialized:   rec.Initialized,
		CustomAgents:  s.customAgents(),
		Cols:          cols,
		Rows:          rows,
	})
	if errors.Is(err, session.ErrSessionExists) {
		if current, ok := s.runtime.Get(id); ok {
			return current, nil
		}
	}
	if err != nil {
		return session.Info{}, err
	}

	if info.State != session.StateFailed && !rec.Initialized {
		if err := s.repo.MarkInitialized(ctx, rec.ID); err != nil {
			s.logger.Error("failed to mark session initialized", zap.String("session_id", rec.ID), zap.Error(err))
		}
	}
	return info, nil
}

// Workspace returns the workspace without modifying it.
func (s *Service) Workspace(ctx context.Context, workspacePath string) (*Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workspace(ctx, workspacePath)
}

func (s *Service) workspace(ctx context.Context, workspacePath string) (*Workspace, error) {
	sessions, err := s.repo.ListSessions(ctx, workspacePath)
	if err != nil {
		return nil, err
	}
	active, err := s.repo.ActiveSession(ctx, workspacePath)
	if err != nil {
		return nil, err
	}
	ws := &Workspace{Path: workspacePath, ActiveSessionID: active, Sessions: make([]*SessionView, 0, len(sessions))}
	for _, rec := range sessions {
		ws.Sessions = append(ws.Sessions, s.view(rec))
	}
	return ws, nil
}

func (s *Service) view(rec *store.Session) *SessionView {
	v := &SessionView{Session: rec, State: session.StateUninitialized}
	if info, ok := s.runtime.Get(rec.ID); ok {
		v.State = info.State
		v.Exit = info.Exit
	}
	return v
}

func (s *Service) createRecord(ctx context.Context, workspacePath, agentID string) (*store.Session, error) {
	name, err := s.displayName(agentID)
	if err != nil {
		return nil, err
	}
	rec := &store.Session{
		ID:            uuid.New().String(),
		WorkspacePath: workspacePath,
		AgentID:       agentID,
		DisplayName:   name,
	}
	if err := s.repo.CreateSession(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating session record: %w", err)
	}
	s.publishLifecycle(ctx, events.SessionCreated, rec)
	return rec, nil
}

func (s *Service) displayName(agentID string) (string, error) {
	base, isWSL := models.SplitWSLID(agentID)
	def, err := catalog.Resolve(base, s.customAgents())
	if err != nil {
		return "", err
	}
	if isWSL {
		return def.Name + " (WSL)", nil
	}
	return def.Name, nil
}

func indexOf(sessions []*store.Session, id string) int {
	for i, rec := range sessions {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

// handleRuntimeEvent runs on the session's goroutine, so anything that calls
// back into the runtime is handed off.
func (s *Service) handleRuntimeEvent(ev session.Event) {
	ctx := context.Background()
	switch ev.Kind {
	case session.EventState:
		s.publish(ctx, events.SessionStateSubject(ev.SessionID), events.SessionStateChanged, ev.SessionID, map[string]any{
			"session_id": ev.SessionID,
			"state":      string(ev.State),
		})
	case session.EventExited:
		data := map[string]any{"session_id": ev.SessionID}
		if ev.Exit != nil {
			data["code"] = ev.Exit.Code
			data["outcome"] = string(ev.Exit.Outcome)
			data["runtime_ms"] = ev.Exit.Runtime.Milliseconds()
		}
		s.publish(ctx, events.SessionExitedSubject(ev.SessionID), events.SessionExited, ev.SessionID, data)

		if ev.Exit != nil && ev.Exit.Outcome == session.OutcomeClean {
			s.closing.Add(1)
			go func() {
				defer s.closing.Done()
				s.autoClose(ev.SessionID)
			}()
		}
	}
}

func (s *Service) autoClose(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.closeLocked(ctx, id)
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		// Not a stored session, or already closed by the user.
	case err != nil:
		s.logger.Error("failed to auto-close session", zap.String("session_id", id), zap.Error(err))
	default:
		s.logger.Info("auto-closed session after clean exit", zap.String("session_id", id))
	}
}

func (s *Service) publishLifecycle(ctx context.Context, eventType string, rec *store.Session) {
	s.publish(ctx, events.SessionLifecycleSubject(rec.ID), eventType, rec.ID, map[string]any{
		"session_id":     rec.ID,
		"workspace_path": rec.WorkspacePath,
		"agent_id":       rec.AgentID,
	})
}

func (s *Service) publish(ctx context.Context, subject, eventType, sessionID string, data map[string]any) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, subject, bus.NewEvent(eventType, eventSource, data)); err != nil {
		s.logger.Error("failed to publish session event",
			zap.String("event_type", eventType),
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}
