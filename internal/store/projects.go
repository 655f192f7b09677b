package store

import (
	"context"
	"fmt"

	"github.com/openstack-archive/fenix/internal/session"
)

// CreateProjects inserts one row per project id, ignoring ids already
// known to the session (projects are discovered incrementally as
// instances are seen).
func (s *Store) CreateProjects(ctx context.Context, sessionID string, projectIDs []string) error {
	for _, p := range projectIDs {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO projects (session_id, project_id, state)
			VALUES ($1, $2, '')
			ON CONFLICT (session_id, project_id) DO NOTHING
		`, sessionID, p)
		if err != nil {
			return fmt.Errorf("create project %s for session %s: %w", p, sessionID, err)
		}
	}
	return nil
}

// ListProjects returns every project row for a session.
func (s *Store) ListProjects(ctx context.Context, sessionID string) ([]session.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, project_id, state
		FROM projects WHERE session_id = $1 ORDER BY project_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list projects for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []session.Project
	for rows.Next() {
		var p session.Project
		if err := rows.Scan(&p.SessionID, &p.ProjectID, &p.State); err != nil {
			return nil, fmt.Errorf("scan project for session %s: %w", sessionID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProject writes back a project's state column.
func (s *Store) UpdateProject(ctx context.Context, p session.Project) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET state = $1 WHERE session_id = $2 AND project_id = $3
	`, p.State, p.SessionID, p.ProjectID)
	if err != nil {
		return fmt.Errorf("update project %s for session %s: %w", p.ProjectID, p.SessionID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update project %s for session %s: %w", p.ProjectID, p.SessionID, err)
	}
	if rows == 0 {
		return fmt.Errorf("project %s not found for session %s", p.ProjectID, p.SessionID)
	}
	return nil
}
