package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstack-archive/fenix/internal/session"
	_ "github.com/openstack-archive/fenix/internal/workflows"
)

// fakeStore is a minimal in-memory session.Store double, enough to let a
// Manager-owned Engine run without a real database.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*session.Session)}
}

func (s *fakeStore) CreateSession(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.SessionID] = &cp
	return nil
}
func (s *fakeStore) GetSession(ctx context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, assert.AnError
	}
	cp := *sess
	return &cp, nil
}
func (s *fakeStore) ListSessions(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	return out, nil
}
func (s *fakeStore) UpdateSessionState(ctx context.Context, id string, state session.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.State = state
	}
	return nil
}
func (s *fakeStore) RemoveSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
func (s *fakeStore) CreateHosts(ctx context.Context, sessionID string, hostnames []string, hostType session.HostType) error {
	return nil
}
func (s *fakeStore) ListHosts(ctx context.Context, sessionID string) ([]session.Host, error) {
	return nil, nil
}
func (s *fakeStore) UpdateHost(ctx context.Context, h session.Host) error { return nil }
func (s *fakeStore) CreateProjects(ctx context.Context, sessionID string, projectIDs []string) error {
	return nil
}
func (s *fakeStore) ListProjects(ctx context.Context, sessionID string) ([]session.Project, error) {
	return nil, nil
}
func (s *fakeStore) UpdateProject(ctx context.Context, p session.Project) error { return nil }
func (s *fakeStore) UpsertInstance(ctx context.Context, i session.Instance) error { return nil }
func (s *fakeStore) DeleteInstance(ctx context.Context, sessionID, instanceID string) error {
	return nil
}
func (s *fakeStore) ListInstances(ctx context.Context, sessionID string) ([]session.Instance, error) {
	return nil, nil
}
func (s *fakeStore) CreateActionPlugins(ctx context.Context, sessionID string, ps []session.ActionPlugin) error {
	return nil
}
func (s *fakeStore) ListActionPlugins(ctx context.Context, sessionID string) ([]session.ActionPlugin, error) {
	return nil, nil
}
func (s *fakeStore) UpdateActionPlugin(ctx context.Context, p session.ActionPlugin) error { return nil }
func (s *fakeStore) UpsertActionPluginInstance(ctx context.Context, i session.ActionPluginInstance) error {
	return nil
}
func (s *fakeStore) ListActionPluginInstances(ctx context.Context, sessionID, plugin string) ([]session.ActionPluginInstance, error) {
	return nil, nil
}

type fakeCompute struct {
	discoveredHosts []session.ServiceInfo
}

func (c fakeCompute) ListServices(ctx context.Context, binary string) ([]session.ServiceInfo, error) {
	return c.discoveredHosts, nil
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

func newTestManager() *Manager {
	return newTestManagerWithCompute(fakeCompute{})
}

func newTestManagerWithCompute(compute fakeCompute) *Manager {
	cfg := session.Config{
		ProjectMaintenanceReply: time.Minute,
		ProjectScaleInReply:     time.Minute,
		WaitProjectReply:        time.Minute,
	}
	return New(compute, fakeNotifier{}, newFakeStore(), cfg, "https://fenix.example.com")
}

func TestManager_CreateEnforcesMaxSessions(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	for i := 0; i < MaxSessions; i++ {
		err := m.Create(ctx, CreateOptions{
			SessionID:     "sess-" + string(rune('a'+i)),
			ComputeHosts:  []string{"compute-1"},
			Workflow:      "default",
			MaintenanceAt: time.Now().Add(time.Hour),
		})
		require.NoError(t, err)
	}

	err := m.Create(ctx, CreateOptions{
		SessionID:     "one-too-many",
		Workflow:      "default",
		MaintenanceAt: time.Now().Add(time.Hour),
	})
	assert.Error(t, err)
	assert.Equal(t, MaxSessions, m.Count())
}

func TestManager_CreateRejectsDuplicateID(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	opts := CreateOptions{SessionID: "dup", Workflow: "default", MaintenanceAt: time.Now().Add(time.Hour)}
	require.NoError(t, m.Create(ctx, opts))
	err := m.Create(ctx, opts)
	assert.Error(t, err)
}

func TestManager_CreateRejectsUnknownWorkflow(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	err := m.Create(ctx, CreateOptions{SessionID: "s1", Workflow: "no-such-workflow", MaintenanceAt: time.Now().Add(time.Hour)})
	assert.Error(t, err)
	assert.Equal(t, 0, m.Count())
}

func TestManager_CreateDiscoversHostsWhenComputeHostsOmitted(t *testing.T) {
	m := newTestManagerWithCompute(fakeCompute{discoveredHosts: []session.ServiceInfo{
		{Host: "compute-1", Status: "enabled"},
		{Host: "compute-2", Status: "enabled"},
	}})
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, CreateOptions{
		SessionID:     "discovered",
		Workflow:      "default",
		MaintenanceAt: time.Now().Add(time.Hour),
	}))

	e, ok := m.Get("discovered")
	require.True(t, ok)
	hosts := e.Data.ComputeHosts()
	names := make([]string, len(hosts))
	for i, h := range hosts {
		names[i] = h.Hostname
	}
	assert.ElementsMatch(t, []string{"compute-1", "compute-2"}, names)
}

func TestManager_GetAndRemove(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, CreateOptions{SessionID: "s1", Workflow: "default", MaintenanceAt: time.Now().Add(time.Hour)}))

	e, ok := m.Get("s1")
	assert.True(t, ok)
	assert.NotNil(t, e)

	require.NoError(t, m.Remove(ctx, "s1"))
	_, ok = m.Get("s1")
	assert.False(t, ok)
}
