package housekeeping

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstack-archive/fenix/internal/manager"
	"github.com/openstack-archive/fenix/internal/session"
	_ "github.com/openstack-archive/fenix/internal/workflows"
)

type fakeStore struct{}

func (fakeStore) CreateSession(ctx context.Context, s *session.Session) error         { return nil }
func (fakeStore) GetSession(ctx context.Context, id string) (*session.Session, error) { return nil, nil }
func (fakeStore) ListSessions(ctx context.Context) ([]string, error)                  { return nil, nil }
func (fakeStore) UpdateSessionState(ctx context.Context, id string, s session.State) error {
	return nil
}
func (fakeStore) RemoveSession(ctx context.Context, id string) error { return nil }
func (fakeStore) CreateHosts(ctx context.Context, sessionID string, hostnames []string, t session.HostType) error {
	return nil
}
func (fakeStore) ListHosts(ctx context.Context, sessionID string) ([]session.Host, error) {
	return nil, nil
}
func (fakeStore) UpdateHost(ctx context.Context, h session.Host) error { return nil }
func (fakeStore) CreateProjects(ctx context.Context, sessionID string, projectIDs []string) error {
	return nil
}
func (fakeStore) ListProjects(ctx context.Context, sessionID string) ([]session.Project, error) {
	return nil, nil
}
func (fakeStore) UpdateProject(ctx context.Context, p session.Project) error   { return nil }
func (fakeStore) UpsertInstance(ctx context.Context, i session.Instance) error { return nil }
func (fakeStore) DeleteInstance(ctx context.Context, sessionID, instanceID string) error {
	return nil
}
func (fakeStore) ListInstances(ctx context.Context, sessionID string) ([]session.Instance, error) {
	return nil, nil
}
func (fakeStore) CreateActionPlugins(ctx context.Context, sessionID string, ps []session.ActionPlugin) error {
	return nil
}
func (fakeStore) ListActionPlugins(ctx context.Context, sessionID string) ([]session.ActionPlugin, error) {
	return nil, nil
}
func (fakeStore) UpdateActionPlugin(ctx context.Context, p session.ActionPlugin) error { return nil }
func (fakeStore) UpsertActionPluginInstance(ctx context.Context, i session.ActionPluginInstance) error {
	return nil
}
func (fakeStore) ListActionPluginInstances(ctx context.Context, sessionID, plugin string) ([]session.ActionPluginInstance, error) {
	return nil, nil
}

type fakeCompute struct{}

func (fakeCompute) ListServices(ctx context.Context, binary string) ([]session.ServiceInfo, error) {
	return nil, nil
}
func (fakeCompute) ListServers(ctx context.Context) ([]session.ServerInfo, error) { return nil, nil }
func (fakeCompute) ListHypervisors(ctx context.Context) ([]session.HypervisorInfo, error) {
	return nil, nil
}
func (fakeCompute) DisableService(ctx context.Context, hostOrID, reason string) error { return nil }
func (fakeCompute) EnableService(ctx context.Context, hostOrID string) error          { return nil }
func (fakeCompute) ServerMigrate(ctx context.Context, id string) error                { return nil }
func (fakeCompute) ServerConfirmResize(ctx context.Context, id string) error          { return nil }
func (fakeCompute) ServerGet(ctx context.Context, id string) (*session.ServerInfo, error) {
	return &session.ServerInfo{ID: id}, nil
}

type fakeNotifier struct{}

func (fakeNotifier) ProjectNotify(ctx context.Context, n session.ProjectNotification) error {
	return nil
}
func (fakeNotifier) AdminNotify(ctx context.Context, n session.AdminNotification) error { return nil }

func TestReaper_RemovesOnlyTerminalSessions(t *testing.T) {
	cfg := session.Config{ProjectMaintenanceReply: time.Minute, ProjectScaleInReply: time.Minute}
	mgr := manager.New(fakeCompute{}, fakeNotifier{}, fakeStore{}, cfg, "https://fenix.example.com")

	require.NoError(t, mgr.Create(context.Background(), manager.CreateOptions{
		SessionID: "active", Workflow: "default", MaintenanceAt: time.Now().Add(time.Hour),
	}))

	r := New(mgr)
	r.sweep()

	_, ok := mgr.Get("active")
	assert.True(t, ok, "a non-terminal session must not be reaped")
}
