// Package session implements the maintenance session's data model (C6) and
// the workflow state machine that drives it (C7, together with
// internal/workflows).
package session

import "time"

// State is one of the workflow's states. It is a closed enum, not an
// arbitrary string, per the redesign of the polymorphic dispatch-by-name
// control flow in the source material.
type State string

const (
	StateMaintenance         State = "MAINTENANCE"
	StateScaleIn             State = "SCALE_IN"
	StatePrepareMaintenance  State = "PREPARE_MAINTENANCE"
	StateStartMaintenance    State = "START_MAINTENANCE"
	StatePlannedMaintenance  State = "PLANNED_MAINTENANCE"
	StateMaintenanceComplete State = "MAINTENANCE_COMPLETE"
	StateMaintenanceDone     State = "MAINTENANCE_DONE"
	StateMaintenanceFailed   State = "MAINTENANCE_FAILED"
)

// IsTerminal reports whether the engine idles in this state rather than
// dispatching a handler.
func (s State) IsTerminal() bool {
	return s == StateMaintenanceDone || s == StateMaintenanceFailed
}

// Ack returns the ACK_<state> reply value a project sends to accept a
// request to move into this state.
func (s State) Ack() string { return "ACK_" + string(s) }

// Nack returns the NACK_<state> reply value.
func (s State) Nack() string { return "NACK_" + string(s) }

// HostType classifies a Host's role in the cluster.
type HostType string

const (
	HostTypeCompute    HostType = "compute"
	HostTypeController HostType = "controller"
	HostTypeOther      HostType = "other"
)

// Action is the project-selected behavior for evacuating one of its
// instances. It is a closed sum type, not a bare string.
type Action string

const (
	ActionNone        Action = ""
	ActionMigrate     Action = "MIGRATE"
	ActionLiveMigrate Action = "LIVE_MIGRATE"
	ActionOwnAction   Action = "OWN_ACTION"
)

// ActionPluginType classifies when an ActionPlugin runs relative to host
// maintenance.
type ActionPluginType string

const (
	ActionPluginPre  ActionPluginType = "pre"
	ActionPluginPost ActionPluginType = "post"
	ActionPluginHost ActionPluginType = "host"
)

// Session is one maintenance orchestration run.
type Session struct {
	SessionID     string
	State         State
	MaintenanceAt time.Time
	Meta          string
	Workflow      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Host is a compute or controller node participating in a session.
type Host struct {
	SessionID  string
	Hostname   string
	Type       HostType
	Maintained bool
	Disabled   bool
	Details    string
}

// Project is a tenant with at least one instance on an in-scope host.
type Project struct {
	SessionID string
	ProjectID string
	State     string // "" means unset
}

// Instance is a tenant VM.
type Instance struct {
	SessionID    string
	InstanceID   string
	InstanceName string
	ProjectID    string
	Host         string
	State        string
	ProjectState string // "" means unset
	Action       Action
	ActionDone   bool
	Details      string // e.g. "floating_ip"
}

// HasFloatingIP reports whether this instance is HA-sensitive.
func (i Instance) HasFloatingIP() bool { return i.Details == "floating_ip" }

// ActionPlugin is a declared host-level maintenance step.
type ActionPlugin struct {
	SessionID string
	Plugin    string
	Type      ActionPluginType
	State     string
	Meta      string
}

// ActionPluginInstance is one execution record of an ActionPlugin against a
// single host.
type ActionPluginInstance struct {
	SessionID string
	Plugin    string
	Hostname  string
	State     string
}
