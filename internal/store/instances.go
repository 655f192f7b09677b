package store

import (
	"context"
	"fmt"

	"github.com/openstack-archive/fenix/internal/session"
)

// UpsertInstance writes an instance row, inserting it if new and
// overwriting every mutable column otherwise: the compute adapter's view
// of a server is always the source of truth for identity fields.
func (s *Store) UpsertInstance(ctx context.Context, i session.Instance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instances (
			session_id, instance_id, instance_name, project_id, host,
			state, project_state, action, action_done, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id, instance_id) DO UPDATE SET
			instance_name = EXCLUDED.instance_name,
			project_id    = EXCLUDED.project_id,
			host          = EXCLUDED.host,
			state         = EXCLUDED.state,
			project_state = EXCLUDED.project_state,
			action        = EXCLUDED.action,
			action_done   = EXCLUDED.action_done,
			details       = EXCLUDED.details
	`, i.SessionID, i.InstanceID, i.InstanceName, i.ProjectID, i.Host,
		i.State, i.ProjectState, string(i.Action), i.ActionDone, i.Details)
	if err != nil {
		return fmt.Errorf("upsert instance %s for session %s: %w", i.InstanceID, i.SessionID, err)
	}
	return nil
}

// DeleteInstance removes one instance row, used when the compute adapter
// no longer reports it.
func (s *Store) DeleteInstance(ctx context.Context, sessionID, instanceID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM instances WHERE session_id = $1 AND instance_id = $2
	`, sessionID, instanceID)
	if err != nil {
		return fmt.Errorf("delete instance %s for session %s: %w", instanceID, sessionID, err)
	}
	return nil
}

// ListInstances returns every instance row for a session.
func (s *Store) ListInstances(ctx context.Context, sessionID string) ([]session.Instance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, instance_id, instance_name, project_id, host,
			state, project_state, action, action_done, COALESCE(details, '')
		FROM instances WHERE session_id = $1 ORDER BY instance_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list instances for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []session.Instance
	for rows.Next() {
		var i session.Instance
		var action string
		if err := rows.Scan(
			&i.SessionID, &i.InstanceID, &i.InstanceName, &i.ProjectID, &i.Host,
			&i.State, &i.ProjectState, &action, &i.ActionDone, &i.Details,
		); err != nil {
			return nil, fmt.Errorf("scan instance for session %s: %w", sessionID, err)
		}
		i.Action = session.Action(action)
		out = append(out, i)
	}
	return out, rows.Err()
}
