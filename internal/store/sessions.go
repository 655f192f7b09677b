package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/openstack-archive/fenix/internal/session"
)

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	query := `
		INSERT INTO sessions (session_id, state, maintenance_at, meta, workflow)
		VALUES ($1, $2, $3, $4, $5)
	`
	workflow := sess.Workflow
	if workflow == "" {
		workflow = "default"
	}
	_, err := s.db.ExecContext(ctx, query, sess.SessionID, string(sess.State), sess.MaintenanceAt, sess.Meta, workflow)
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.SessionID, err)
	}
	return nil
}

// GetSession fetches one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	query := `
		SELECT session_id, state, maintenance_at, COALESCE(meta, ''), workflow, created_at, updated_at
		FROM sessions WHERE session_id = $1
	`
	var sess session.Session
	var state string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&sess.SessionID, &state, &sess.MaintenanceAt, &sess.Meta, &sess.Workflow, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	sess.State = session.State(state)
	return &sess, nil
}

// ListSessions returns every session id in the store, oldest first.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateSessionState updates only a session's state column.
func (s *Store) UpdateSessionState(ctx context.Context, id string, state session.State) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET state = $1, updated_at = CURRENT_TIMESTAMP WHERE session_id = $2`,
		string(state), id,
	)
	if err != nil {
		return fmt.Errorf("update session %s state: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session %s state: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// RemoveSession deletes a session and everything that references it
// (hosts, projects, instances, action plugins) in one transaction; the
// foreign keys carry ON DELETE CASCADE, but the transaction still gives
// the caller a single atomic outcome to check.
func (s *Store) RemoveSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove session %s: %w", id, err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = $1`, id)
	if err != nil {
		return fmt.Errorf("remove session %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove session %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("session %s not found", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove session %s: %w", id, err)
	}
	return nil
}
