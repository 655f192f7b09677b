package session

import (
	"context"
	"errors"
	"time"
)

// ErrBadRequest is returned by ComputeAdapter.ServerMigrate when the compute
// plane rejects the request as malformed or not currently retryable in its
// current form (distinct from a hard failure), so the workflow's bounded
// backoff-and-retry applies.
var ErrBadRequest = errors.New("compute: bad request")

// Store is the Session Store (C1) surface the engine and Data consume. It
// is satisfied by internal/store's PostgreSQL-backed implementation.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context) ([]string, error)
	UpdateSessionState(ctx context.Context, id string, state State) error
	RemoveSession(ctx context.Context, id string) error

	CreateHosts(ctx context.Context, sessionID string, hostnames []string, hostType HostType) error
	ListHosts(ctx context.Context, sessionID string) ([]Host, error)
	UpdateHost(ctx context.Context, h Host) error

	CreateProjects(ctx context.Context, sessionID string, projectIDs []string) error
	ListProjects(ctx context.Context, sessionID string) ([]Project, error)
	UpdateProject(ctx context.Context, p Project) error

	UpsertInstance(ctx context.Context, i Instance) error
	DeleteInstance(ctx context.Context, sessionID, instanceID string) error
	ListInstances(ctx context.Context, sessionID string) ([]Instance, error)

	CreateActionPlugins(ctx context.Context, sessionID string, plugins []ActionPlugin) error
	ListActionPlugins(ctx context.Context, sessionID string) ([]ActionPlugin, error)
	UpdateActionPlugin(ctx context.Context, p ActionPlugin) error

	UpsertActionPluginInstance(ctx context.Context, i ActionPluginInstance) error
	ListActionPluginInstances(ctx context.Context, sessionID, plugin string) ([]ActionPluginInstance, error)
}

// ServiceInfo mirrors a C2 list_services row.
type ServiceInfo struct {
	Host   string
	Status string
	ID     string
}

// Address is one network address reported for a server.
type Address struct {
	Addr string
	Type string // "fixed" or "floating"
}

// ServerInfo mirrors a C2 list_servers / server_get row.
type ServerInfo struct {
	ID        string
	Name      string
	ProjectID string
	Host      string
	VMState   string
	Addresses map[string][]Address
}

// HasFloatingIP reports whether any of the server's addresses are floating.
func (s ServerInfo) HasFloatingIP() bool {
	for _, addrs := range s.Addresses {
		for _, a := range addrs {
			if a.Type == "floating" {
				return true
			}
		}
	}
	return false
}

// HypervisorInfo mirrors a C2 list_hypervisors row.
type HypervisorInfo struct {
	Hostname   string
	VCPUs      int
	VCPUsUsed  int
}

// ComputeAdapter is the Compute Adapter (C2) surface the engine consumes.
type ComputeAdapter interface {
	ListServices(ctx context.Context, binary string) ([]ServiceInfo, error)
	ListServers(ctx context.Context) ([]ServerInfo, error)
	ListHypervisors(ctx context.Context) ([]HypervisorInfo, error)
	DisableService(ctx context.Context, hostOrID, reason string) error
	EnableService(ctx context.Context, hostOrID string) error
	ServerMigrate(ctx context.Context, id string) error
	ServerConfirmResize(ctx context.Context, id string) error
	ServerGet(ctx context.Context, id string) (*ServerInfo, error)
}

// ProjectNotification is the envelope sent to a tenant project.
type ProjectNotification struct {
	SessionID      string
	ProjectID      string
	InstanceIDs    []string
	AllowedActions []Action
	State          string
	ActionsAt      time.Time
	ReplyAt        time.Time
	Metadata       string
	ReplyURL       string
}

// AdminNotification is the envelope sent to administrators.
type AdminNotification struct {
	SessionID string
	ProjectID string
	Host      string
	State     string
}

// Notifier is the Notifier (C3) surface the engine consumes.
type Notifier interface {
	ProjectNotify(ctx context.Context, n ProjectNotification) error
	AdminNotify(ctx context.Context, n AdminNotification) error
}

// TimerRegistry is the per-session Timer Registry (C4) surface.
type TimerRegistry interface {
	Start(name string, delay time.Duration)
	Stop(name string)
	IsExpired(name string) bool
}

// ActionPluginRunner executes the host-type action plugins (§4.9) during
// START_MAINTENANCE/PLANNED_MAINTENANCE host maintenance.
type ActionPluginRunner interface {
	RunHostPlugins(ctx context.Context, sessionID, hostname string, plugins []ActionPlugin) error
}
