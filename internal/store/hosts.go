package store

import (
	"context"
	"fmt"

	"github.com/openstack-archive/fenix/internal/session"
)

// CreateHosts inserts one row per hostname, all sharing hostType, used
// when a session is opened against its in-scope hosts.
func (s *Store) CreateHosts(ctx context.Context, sessionID string, hostnames []string, hostType session.HostType) error {
	for _, h := range hostnames {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO hosts (session_id, hostname, type)
			VALUES ($1, $2, $3)
			ON CONFLICT (session_id, hostname) DO UPDATE SET type = EXCLUDED.type
		`, sessionID, h, string(hostType))
		if err != nil {
			return fmt.Errorf("create host %s for session %s: %w", h, sessionID, err)
		}
	}
	return nil
}

// ListHosts returns every host row for a session.
func (s *Store) ListHosts(ctx context.Context, sessionID string) ([]session.Host, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, hostname, type, maintained, disabled, COALESCE(details, '')
		FROM hosts WHERE session_id = $1 ORDER BY hostname
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list hosts for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []session.Host
	for rows.Next() {
		var h session.Host
		var hostType string
		if err := rows.Scan(&h.SessionID, &h.Hostname, &hostType, &h.Maintained, &h.Disabled, &h.Details); err != nil {
			return nil, fmt.Errorf("scan host for session %s: %w", sessionID, err)
		}
		h.Type = session.HostType(hostType)
		out = append(out, h)
	}
	return out, rows.Err()
}

// UpdateHost writes back a host's mutable fields (maintained, disabled,
// details).
func (s *Store) UpdateHost(ctx context.Context, h session.Host) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE hosts SET maintained = $1, disabled = $2, details = $3
		WHERE session_id = $4 AND hostname = $5
	`, h.Maintained, h.Disabled, h.Details, h.SessionID, h.Hostname)
	if err != nil {
		return fmt.Errorf("update host %s for session %s: %w", h.Hostname, h.SessionID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update host %s for session %s: %w", h.Hostname, h.SessionID, err)
	}
	if rows == 0 {
		return fmt.Errorf("host %s not found for session %s", h.Hostname, h.SessionID)
	}
	return nil
}
