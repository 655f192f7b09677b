package store

import (
	"context"
	"fmt"

	"github.com/openstack-archive/fenix/internal/session"
)

// CreateActionPlugins declares a session's action plugins, one row per
// plugin.
func (s *Store) CreateActionPlugins(ctx context.Context, sessionID string, plugins []session.ActionPlugin) error {
	for _, p := range plugins {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO action_plugins (session_id, plugin, type, state, meta)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (session_id, plugin) DO UPDATE SET
				type = EXCLUDED.type, meta = EXCLUDED.meta
		`, sessionID, p.Plugin, string(p.Type), p.State, p.Meta)
		if err != nil {
			return fmt.Errorf("create action plugin %s for session %s: %w", p.Plugin, sessionID, err)
		}
	}
	return nil
}

// ListActionPlugins returns every declared action plugin for a session.
func (s *Store) ListActionPlugins(ctx context.Context, sessionID string) ([]session.ActionPlugin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, plugin, type, state, COALESCE(meta, '')
		FROM action_plugins WHERE session_id = $1 ORDER BY plugin
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list action plugins for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []session.ActionPlugin
	for rows.Next() {
		var p session.ActionPlugin
		var t string
		if err := rows.Scan(&p.SessionID, &p.Plugin, &t, &p.State, &p.Meta); err != nil {
			return nil, fmt.Errorf("scan action plugin for session %s: %w", sessionID, err)
		}
		p.Type = session.ActionPluginType(t)
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateActionPlugin writes back an action plugin's state column.
func (s *Store) UpdateActionPlugin(ctx context.Context, p session.ActionPlugin) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE action_plugins SET state = $1 WHERE session_id = $2 AND plugin = $3
	`, p.State, p.SessionID, p.Plugin)
	if err != nil {
		return fmt.Errorf("update action plugin %s for session %s: %w", p.Plugin, p.SessionID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update action plugin %s for session %s: %w", p.Plugin, p.SessionID, err)
	}
	if rows == 0 {
		return fmt.Errorf("action plugin %s not found for session %s", p.Plugin, p.SessionID)
	}
	return nil
}

// UpsertActionPluginInstance records one execution of an action plugin
// against a host, overwriting the previous record for that
// (plugin, hostname) pair: only the latest run's state matters.
func (s *Store) UpsertActionPluginInstance(ctx context.Context, i session.ActionPluginInstance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_plugin_instances (session_id, plugin, hostname, state)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, plugin, hostname) DO UPDATE SET state = EXCLUDED.state
	`, i.SessionID, i.Plugin, i.Hostname, i.State)
	if err != nil {
		return fmt.Errorf("upsert action plugin instance %s/%s for session %s: %w", i.Plugin, i.Hostname, i.SessionID, err)
	}
	return nil
}

// ListActionPluginInstances returns every execution record for one
// plugin within a session.
func (s *Store) ListActionPluginInstances(ctx context.Context, sessionID, plugin string) ([]session.ActionPluginInstance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, plugin, hostname, state
		FROM action_plugin_instances WHERE session_id = $1 AND plugin = $2 ORDER BY hostname
	`, sessionID, plugin)
	if err != nil {
		return nil, fmt.Errorf("list action plugin instances for %s/%s: %w", sessionID, plugin, err)
	}
	defer rows.Close()

	var out []session.ActionPluginInstance
	for rows.Next() {
		var i session.ActionPluginInstance
		if err := rows.Scan(&i.SessionID, &i.Plugin, &i.Hostname, &i.State); err != nil {
			return nil, fmt.Errorf("scan action plugin instance for %s/%s: %w", sessionID, plugin, err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}
