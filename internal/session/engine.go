package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openstack-archive/fenix/internal/logger"
)

// Config holds the workflow timing options listed in the spec's
// configuration surface.
type Config struct {
	ProjectMaintenanceReply time.Duration // project_maintenance_reply
	ProjectScaleInReply     time.Duration // project_scale_in_reply
	WaitProjectReply        time.Duration // wait_project_reply (outer RPC timeout, informational here)
}

// Workflow implements one handler per non-terminal state. Implementations
// are registered by name in internal/workflows and selected at session
// creation time.
type Workflow interface {
	Maintenance(ctx context.Context, e *Engine) (State, error)
	ScaleIn(ctx context.Context, e *Engine) (State, error)
	PrepareMaintenance(ctx context.Context, e *Engine) (State, error)
	StartMaintenance(ctx context.Context, e *Engine) (State, error)
	PlannedMaintenance(ctx context.Context, e *Engine) (State, error)
	MaintenanceComplete(ctx context.Context, e *Engine) (State, error)
}

// Engine is the central workflow state machine (C7): it drives one session
// through its states, invoking the Compute Adapter, Notifier, Timer
// Registry and Project Reply Gateway (indirectly, via Data), and applies
// the named Workflow's policy at each step.
type Engine struct {
	SessionID     string
	Data          *Data
	Compute       ComputeAdapter
	Notify        Notifier
	Timers        TimerRegistry
	Store         Store
	Plugins       ActionPluginRunner
	Config        Config
	Workflow      Workflow
	MaintenanceAt time.Time
	Meta          string
	ReplyURLBase  string // e.g. https://fenix.example.com, used to build each project's reply_url

	mu      sync.Mutex
	state   State
	stopped atomic.Bool
}

// NewEngine constructs an Engine in the initial MAINTENANCE state.
func NewEngine(sessionID string, data *Data, compute ComputeAdapter, notify Notifier, timers TimerRegistry, store Store, plugins ActionPluginRunner, cfg Config, wf Workflow, maintenanceAt time.Time, meta, replyURLBase string) *Engine {
	return &Engine{
		SessionID:     sessionID,
		Data:          data,
		Compute:       compute,
		Notify:        notify,
		Timers:        timers,
		Store:         store,
		Plugins:       plugins,
		Config:        cfg,
		Workflow:      wf,
		MaintenanceAt: maintenanceAt,
		Meta:          meta,
		ReplyURLBase:  replyURLBase,
		state:         StateMaintenance,
	}
}

// ReplyURL builds the callback URL a project uses to post its reply for
// this session.
func (e *Engine) ReplyURL(projectID string) string {
	return e.ReplyURLBase + "/v1/maintenance/" + e.SessionID + "/" + projectID
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(ctx context.Context, s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	if err := e.Store.UpdateSessionState(ctx, e.SessionID, s); err != nil {
		logger.Workflow().Error().Err(err).Str("session_id", e.SessionID).Msg("failed to persist session state")
	}
}

// Stop requests the run loop exit after its current handler returns.
func (e *Engine) Stop() { e.stopped.Store(true) }

// Stopped reports whether Stop has been called.
func (e *Engine) Stopped() bool { return e.stopped.Load() }

// Run executes the state-dispatch loop until Stop is called. Terminal
// states idle with a 1-second sleep rather than being dispatched, matching
// the source behavior of keeping a failed session alive for inspection.
func (e *Engine) Run(ctx context.Context) {
	handlers := map[State]func(context.Context, *Engine) (State, error){
		StateMaintenance:         e.Workflow.Maintenance,
		StateScaleIn:             e.Workflow.ScaleIn,
		StatePrepareMaintenance:  e.Workflow.PrepareMaintenance,
		StateStartMaintenance:    e.Workflow.StartMaintenance,
		StatePlannedMaintenance:  e.Workflow.PlannedMaintenance,
		StateMaintenanceComplete: e.Workflow.MaintenanceComplete,
	}

	log := logger.Workflow().With().Str("session_id", e.SessionID).Logger()

	for !e.stopped.Load() {
		st := e.State()
		if st.IsTerminal() {
			time.Sleep(time.Second)
			continue
		}

		handler, ok := handlers[st]
		if !ok {
			log.Error().Str("state", string(st)).Msg("no handler for state")
			e.setState(ctx, StateMaintenanceFailed)
			continue
		}

		next, err := handler(ctx, e)
		if err != nil {
			log.Error().Err(err).Str("state", string(st)).Msg("handler failed")
			e.setState(ctx, StateMaintenanceFailed)
			continue
		}

		log.Info().Str("from", string(st)).Str("to", string(next)).Msg("state transition")
		e.setState(ctx, next)
	}
}

// WaitProjectsState implements the reply-waiting sub-protocol (§4.7): it
// polls every project with a non-empty state once a second until all have
// replied ACK_<target>, any replies NACK_<target> or anything else
// unexpected, or the named timer expires.
func (e *Engine) WaitProjectsState(ctx context.Context, target State, timerName string) bool {
	for {
		if e.Timers.IsExpired(timerName) {
			return false
		}

		projects := e.Data.ProjectsWithState()
		allAcked := true
		for _, p := range projects {
			switch p.State {
			case string(target):
				allAcked = false
			case target.Ack():
				// continue to next project
			case target.Nack():
				e.Timers.Stop(timerName)
				return false
			default:
				e.Timers.Stop(timerName)
				return false
			}
		}

		if allAcked {
			e.Timers.Stop(timerName)
			return true
		}

		select {
		case <-ctx.Done():
			e.Timers.Stop(timerName)
			return false
		case <-time.After(time.Second):
		}
	}
}
