package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kandev/agenthost/internal/db/dialect"
)

// sqlRepository works on SQLite and PostgreSQL; queries use ? placeholders
// and are rebound per driver.
type sqlRepository struct {
	db     *sqlx.DB // writer
	ro     *sqlx.DB // reader
	ownsDB bool
}

var _ Repository = (*sqlRepository)(nil)

func newSQLRepository(writer, reader *sqlx.DB, ownsDB bool) (*sqlRepository, error) {
	repo := &sqlRepository{db: writer, ro: reader, ownsDB: ownsDB}
	if err := repo.initSchema(); err != nil {
		if ownsDB {
			_ = writer.Close()
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

func (r *sqlRepository) Close() error {
	if !r.ownsDB {
		return nil
	}
	return r.db.Close()
}

func (r *sqlRepository) initSchema() error {
	ts := dialect.TimestampType(r.db.DriverName())
	schema := `
	CREATE TABLE IF NOT EXISTS agent_sessions (
		id TEXT PRIMARY KEY,
		workspace_path TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		initialized INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL,
		created_at ` + ts + ` NOT NULL,
		updated_at ` + ts + ` NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_agent_sessions_workspace ON agent_sessions(workspace_path, position);

	CREATE TABLE IF NOT EXISTS workspace_active_sessions (
		workspace_path TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		updated_at ` + ts + ` NOT NULL
	);
	`
	_, err := r.db.Exec(schema)
	return err
}

const sessionColumns = `id, workspace_path, agent_id, display_name, initialized, position, created_at, updated_at`

func (r *sqlRepository) CreateSession(ctx context.Context, s *Session) error {
	if s == nil {
		return fmt.Errorf("session is nil")
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	if err := tx.GetContext(ctx, &next, tx.Rebind(
		`SELECT COALESCE(MAX(position), -1) + 1 FROM agent_sessions WHERE workspace_path = ?`,
	), s.WorkspacePath); err != nil {
		return err
	}
	s.Position = next

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO agent_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), s.ID, s.WorkspacePath, s.AgentID, s.DisplayName, dialect.BoolToInt(s.Initialized), s.Position, s.CreatedAt, s.UpdatedAt); err != nil {
		if dialect.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrSessionExists, s.ID)
		}
		return err
	}
	return tx.Commit()
}

func (r *sqlRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	s := &Session{}
	err := r.ro.GetContext(ctx, s, r.ro.Rebind(`SELECT `+sessionColumns+` FROM agent_sessions WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *sqlRepository) ListSessions(ctx context.Context, workspacePath string) ([]*Session, error) {
	var sessions []*Session
	err := r.ro.SelectContext(ctx, &sessions, r.ro.Rebind(`
		SELECT `+sessionColumns+`
		FROM agent_sessions
		WHERE workspace_path = ?
		ORDER BY position ASC
	`), workspacePath)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sqlRepository) ListWorkspaces(ctx context.Context) ([]string, error) {
	var paths []string
	err := r.ro.SelectContext(ctx, &paths, `SELECT DISTINCT workspace_path FROM agent_sessions ORDER BY workspace_path`)
	return paths, err
}

func (r *sqlRepository) MarkInitialized(ctx context.Context, id string) error {
	return r.updateOne(ctx, `UPDATE agent_sessions SET initialized = 1, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
}

func (r *sqlRepository) RenameSession(ctx context.Context, id, displayName string) error {
	return r.updateOne(ctx, `UPDATE agent_sessions SET display_name = ?, updated_at = ? WHERE id = ?`, displayName, time.Now().UTC(), id)
}

func (r *sqlRepository) DeleteSession(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM agent_sessions WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM workspace_active_sessions WHERE session_id = ?`), id); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *sqlRepository) ActiveSession(ctx context.Context, workspacePath string) (string, error) {
	var id string
	err := r.ro.GetContext(ctx, &id, r.ro.Rebind(`SELECT session_id FROM workspace_active_sessions WHERE workspace_path = ?`), workspacePath)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func (r *sqlRepository) SetActiveSession(ctx context.Context, workspacePath, sessionID string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO workspace_active_sessions (workspace_path, session_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(workspace_path) DO UPDATE SET
			session_id = excluded.session_id,
			updated_at = excluded.updated_at
	`), workspacePath, sessionID, time.Now().UTC())
	return err
}

func (r *sqlRepository) updateOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %v", ErrSessionNotFound, args[len(args)-1])
	}
	return nil
}
