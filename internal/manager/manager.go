// Package manager implements the Session Manager (C8): an owned registry
// of running maintenance sessions, replacing the source material's
// process-global workflow_sessions dict (§9 redesign) with an explicit,
// lockable struct any number of which could exist side by side (useful in
// tests, where the source material's module-level state made concurrent
// sessions impossible to isolate).
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openstack-archive/fenix/internal/logger"
	"github.com/openstack-archive/fenix/internal/plugins"
	"github.com/openstack-archive/fenix/internal/session"
	"github.com/openstack-archive/fenix/internal/timer"
	"github.com/openstack-archive/fenix/internal/workflows"
)

// MaxSessions caps how many maintenance sessions can run concurrently, a
// limit the source material enforced as MAX_SESSIONS against the same
// per-process registry this type replaces.
const MaxSessions = 3

// Sentinel errors Create can return, so callers (the HTTP layer in
// particular) can tell admission-control rejections apart from a plain
// duplicate id or an unknown workflow instead of collapsing every failure
// into one response.
var (
	ErrMaxSessions       = errors.New("maximum concurrent maintenance sessions already running")
	ErrDuplicateSession  = errors.New("session already exists")
	ErrUnknownWorkflow   = errors.New("unknown workflow")
)

// entry is one running session's owned state.
type entry struct {
	engine *session.Engine
	data   *session.Data
	cancel context.CancelFunc
}

// Manager owns every running session's Engine and Data. All of its methods
// are safe for concurrent use.
type Manager struct {
	compute session.ComputeAdapter
	notify  session.Notifier
	store   session.Store
	cfg     session.Config

	replyURLBase string

	mu       sync.Mutex
	sessions map[string]*entry
}

// New constructs an empty Manager wired to the shared adapters every
// session will use.
func New(compute session.ComputeAdapter, notify session.Notifier, store session.Store, cfg session.Config, replyURLBase string) *Manager {
	return &Manager{
		compute:      compute,
		notify:       notify,
		store:        store,
		cfg:          cfg,
		replyURLBase: replyURLBase,
		sessions:     make(map[string]*entry),
	}
}

// CreateOptions describes a new maintenance session.
type CreateOptions struct {
	SessionID       string
	ComputeHosts    []string
	ControllerHosts []string
	Workflow        string
	MaintenanceAt   time.Time
	Meta            string
	ActionPlugins   []session.ActionPlugin
}

// Create starts a new session, persisting it and its scoped hosts, then
// launches its Engine.Run loop in the background. It fails once
// MaxSessions are already running, matching the source material's
// admission control.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) error {
	m.mu.Lock()
	if len(m.sessions) >= MaxSessions {
		m.mu.Unlock()
		return fmt.Errorf("%w: limit is %d", ErrMaxSessions, MaxSessions)
	}
	if _, exists := m.sessions[opts.SessionID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateSession, opts.SessionID)
	}
	m.mu.Unlock()

	factory, err := workflows.Get(opts.Workflow)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, opts.Workflow)
	}

	computeHosts := opts.ComputeHosts
	if len(computeHosts) == 0 {
		discovered, err := m.compute.ListServices(ctx, "nova-compute")
		if err != nil {
			return fmt.Errorf("discover compute hosts for session %s: %w", opts.SessionID, err)
		}
		computeHosts = make([]string, 0, len(discovered))
		for _, s := range discovered {
			computeHosts = append(computeHosts, s.Host)
		}
		logger.Workflow().Info().Str("session_id", opts.SessionID).Int("discovered", len(computeHosts)).Msg("no compute_hosts supplied, discovered via compute adapter")
	}

	sess := &session.Session{
		SessionID:     opts.SessionID,
		State:         session.StateMaintenance,
		MaintenanceAt: opts.MaintenanceAt,
		Meta:          opts.Meta,
		Workflow:      opts.Workflow,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return fmt.Errorf("create session %s: %w", opts.SessionID, err)
	}

	data := session.NewData(opts.SessionID, m.store)
	if len(computeHosts) > 0 {
		if err := data.AddHosts(ctx, computeHosts, session.HostTypeCompute); err != nil {
			return fmt.Errorf("create session %s: %w", opts.SessionID, err)
		}
	}
	if len(opts.ControllerHosts) > 0 {
		if err := data.AddHosts(ctx, opts.ControllerHosts, session.HostTypeController); err != nil {
			return fmt.Errorf("create session %s: %w", opts.SessionID, err)
		}
	}
	if len(opts.ActionPlugins) > 0 {
		if err := data.AddActionPlugins(ctx, opts.ActionPlugins); err != nil {
			return fmt.Errorf("create session %s: %w", opts.SessionID, err)
		}
	}

	timers := timer.New(opts.SessionID)
	runner := &plugins.Runner{Store: m.store}
	engine := session.NewEngine(opts.SessionID, data, m.compute, m.notify, timers, m.store, runner, m.cfg, factory(), opts.MaintenanceAt, opts.Meta, m.replyURLBase)

	runCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.sessions[opts.SessionID] = &entry{engine: engine, data: data, cancel: cancel}
	m.mu.Unlock()

	go func() {
		logger.Workflow().Info().Str("session_id", opts.SessionID).Msg("session started")
		engine.Run(runCtx)
	}()

	return nil
}

// Get returns the running Engine for a session, for read access (its
// State method, or its Data for the reply gateway).
func (m *Manager) Get(sessionID string) (*session.Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return e.engine, true
}

// List returns every running session id.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	return out
}

// Remove stops a session's Engine and deletes it from the store and the
// registry.
func (m *Manager) Remove(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("session %s not found", sessionID)
	}
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	e.engine.Stop()
	e.cancel()

	if err := m.store.RemoveSession(ctx, sessionID); err != nil {
		return fmt.Errorf("remove session %s: %w", sessionID, err)
	}
	return nil
}

// Count reports how many sessions are currently running.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
