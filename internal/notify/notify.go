// Package notify implements the Notifier (C3): publishing project and
// admin notifications over NATS. The source material's own event
// publisher is a no-op stub left behind when its agents moved to
// WebSocket; this one actually publishes, built on the connection-option
// idiom its subscriber still uses to talk to NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/openstack-archive/fenix/internal/logger"
	"github.com/openstack-archive/fenix/internal/session"
)

// Subjects this package publishes on.
const (
	SubjectProjectMaintenance = "fenix.maintenance.scheduled"
	SubjectAdminHost          = "fenix.maintenance.host"
)

// Config holds NATS connection options.
type Config struct {
	URL      string
	User     string
	Password string
}

// Notifier publishes project and admin notifications to NATS. It
// satisfies session.Notifier.
type Notifier struct {
	conn    *nats.Conn
	enabled bool
}

// New connects to NATS per cfg. If cfg.URL is empty, it returns a disabled
// notifier that logs and no-ops instead of failing the process, matching
// the source material's tolerance for a missing message bus in
// constrained environments.
func New(cfg Config) (*Notifier, error) {
	if cfg.URL == "" {
		logger.Notify().Warn().Msg("NATS_URL not configured, notifications disabled")
		return &Notifier{enabled: false}, nil
	}

	opts := []nats.Option{
		nats.Name("fenixd-notifier"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Notify().Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Notify().Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Notify().Error().Err(err).Msg("NATS error")
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}

	logger.Notify().Info().Str("url", conn.ConnectedUrl()).Msg("notifier connected to NATS")
	return &Notifier{conn: conn, enabled: true}, nil
}

// Close drains and closes the NATS connection.
func (n *Notifier) Close() {
	if n.conn != nil {
		n.conn.Drain()
		n.conn.Close()
	}
}

// projectMessage is the wire envelope delivered to a project's reply_url
// owner, mirroring the fields a project needs to decide and reply.
type projectMessage struct {
	SessionID      string    `json:"session_id"`
	ProjectID      string    `json:"project_id"`
	InstanceIDs    []string  `json:"instance_ids"`
	AllowedActions []string  `json:"allowed_actions"`
	State          string    `json:"state"`
	ActionsAt      time.Time `json:"actions_at"`
	ReplyAt        time.Time `json:"reply_at"`
	Metadata       string    `json:"metadata,omitempty"`
	ReplyURL       string    `json:"reply_url"`
}

// ProjectNotify publishes one notification to the project-facing subject.
func (n *Notifier) ProjectNotify(ctx context.Context, not session.ProjectNotification) error {
	if !n.enabled {
		logger.Notify().Debug().Str("project_id", not.ProjectID).Str("state", not.State).Msg("notifier disabled, dropping project notification")
		return nil
	}

	actions := make([]string, 0, len(not.AllowedActions))
	for _, a := range not.AllowedActions {
		actions = append(actions, string(a))
	}
	msg := projectMessage{
		SessionID:      not.SessionID,
		ProjectID:      not.ProjectID,
		InstanceIDs:    not.InstanceIDs,
		AllowedActions: actions,
		State:          not.State,
		ActionsAt:      not.ActionsAt,
		ReplyAt:        not.ReplyAt,
		Metadata:       not.Metadata,
		ReplyURL:       not.ReplyURL,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal project notification: %w", err)
	}
	if err := n.conn.Publish(SubjectProjectMaintenance+"."+not.ProjectID, data); err != nil {
		return fmt.Errorf("publish project notification: %w", err)
	}
	return nil
}

type adminMessage struct {
	SessionID string `json:"session_id"`
	ProjectID string `json:"project_id,omitempty"`
	Host      string `json:"host,omitempty"`
	State     string `json:"state"`
}

// AdminNotify publishes one notification to the admin-facing subject.
func (n *Notifier) AdminNotify(ctx context.Context, not session.AdminNotification) error {
	if !n.enabled {
		logger.Notify().Debug().Str("host", not.Host).Str("state", not.State).Msg("notifier disabled, dropping admin notification")
		return nil
	}

	msg := adminMessage{SessionID: not.SessionID, ProjectID: not.ProjectID, Host: not.Host, State: not.State}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal admin notification: %w", err)
	}
	if err := n.conn.Publish(SubjectAdminHost, data); err != nil {
		return fmt.Errorf("publish admin notification: %w", err)
	}
	return nil
}
