package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstack-archive/fenix/internal/manager"
	"github.com/openstack-archive/fenix/internal/session"
	_ "github.com/openstack-archive/fenix/internal/workflows"
)

type noopStore struct{}

func (noopStore) CreateSession(ctx context.Context, s *session.Session) error          { return nil }
func (noopStore) GetSession(ctx context.Context, id string) (*session.Session, error)  { return nil, nil }
func (noopStore) ListSessions(ctx context.Context) ([]string, error)                   { return nil, nil }
func (noopStore) UpdateSessionState(ctx context.Context, id string, s session.State) error { return nil }
func (noopStore) RemoveSession(ctx context.Context, id string) error                   { return nil }
func (noopStore) CreateHosts(ctx context.Context, sessionID string, hostnames []string, t session.HostType) error {
	return nil
}
func (noopStore) ListHosts(ctx context.Context, sessionID string) ([]session.Host, error) {
	return nil, nil
}
func (noopStore) UpdateHost(ctx context.Context, h session.Host) error { return nil }
func (noopStore) CreateProjects(ctx context.Context, sessionID string, projectIDs []string) error {
	return nil
}
func (noopStore) ListProjects(ctx context.Context, sessionID string) ([]session.Project, error) {
	return nil, nil
}
func (noopStore) UpdateProject(ctx context.Context, p session.Project) error     { return nil }
func (noopStore) UpsertInstance(ctx context.Context, i session.Instance) error   { return nil }
func (noopStore) DeleteInstance(ctx context.Context, sessionID, instanceID string) error {
	return nil
}
func (noopStore) ListInstances(ctx context.Context, sessionID string) ([]session.Instance, error) {
	return nil, nil
}
func (noopStore) CreateActionPlugins(ctx context.Context, sessionID string, ps []session.ActionPlugin) error {
	return nil
}
func (noopStore) ListActionPlugins(ctx context.Context, sessionID string) ([]session.ActionPlugin, error) {
	return nil, nil
}
func (noopStore) UpdateActionPlugin(ctx context.Context, p session.ActionPlugin) error { return nil }
func (noopStore) UpsertActionPluginInstance(ctx context.Context, i session.ActionPluginInstance) error {
	return nil
}
func (noopStore) ListActionPluginInstances(ctx context.Context, sessionID, plugin string) ([]session.ActionPluginInstance, error) {
	return nil, nil
}

type noopCompute struct{}

func (noopCompute) ListServices(ctx context.Context, binary string) ([]session.ServiceInfo, error) {
	return nil, nil
}
func (noopCompute) ListServers(ctx context.Context) ([]session.ServerInfo, error) { return nil, nil }
func (noopCompute) ListHypervisors(ctx context.Context) ([]session.HypervisorInfo, error) {
	return nil, nil
}
func (noopCompute) DisableService(ctx context.Context, hostOrID, reason string) error { return nil }
func (noopCompute) EnableService(ctx context.Context, hostOrID string) error          { return nil }
func (noopCompute) ServerMigrate(ctx context.Context, id string) error                { return nil }
func (noopCompute) ServerConfirmResize(ctx context.Context, id string) error          { return nil }
func (noopCompute) ServerGet(ctx context.Context, id string) (*session.ServerInfo, error) {
	return &session.ServerInfo{ID: id}, nil
}

type noopNotifier struct{}

func (noopNotifier) ProjectNotify(ctx context.Context, n session.ProjectNotification) error {
	return nil
}
func (noopNotifier) AdminNotify(ctx context.Context, n session.AdminNotification) error { return nil }

func setup(t *testing.T) (*Handler, *manager.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := session.Config{ProjectMaintenanceReply: time.Minute, ProjectScaleInReply: time.Minute}
	mgr := manager.New(noopCompute{}, noopNotifier{}, noopStore{}, cfg, "https://fenix.example.com")

	require.NoError(t, mgr.Create(context.Background(), manager.CreateOptions{
		SessionID:     "sess-1",
		ComputeHosts:  []string{"compute-1"},
		Workflow:      "default",
		MaintenanceAt: time.Now().Add(time.Hour),
	}))

	engine, ok := mgr.Get("sess-1")
	require.True(t, ok)
	require.NoError(t, engine.Data.AddProjects(context.Background(), []string{"project-a"}))

	return NewHandler(mgr), mgr
}

func TestUpdateProjectSession_Success(t *testing.T) {
	h, _ := setup(t)

	router := gin.New()
	h.RegisterRoutes(router)

	body, _ := json.Marshal(replyRequest{State: "ACK_MAINTENANCE"})
	req := httptest.NewRequest(http.MethodPut, "/v1/maintenance/sess-1/project-a", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateProjectSession_UnknownSession(t *testing.T) {
	h, _ := setup(t)

	router := gin.New()
	h.RegisterRoutes(router)

	body, _ := json.Marshal(replyRequest{State: "ACK_MAINTENANCE"})
	req := httptest.NewRequest(http.MethodPut, "/v1/maintenance/missing/project-a", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateProjectSession_UnknownProject(t *testing.T) {
	h, _ := setup(t)

	router := gin.New()
	h.RegisterRoutes(router)

	body, _ := json.Marshal(replyRequest{State: "ACK_MAINTENANCE"})
	req := httptest.NewRequest(http.MethodPut, "/v1/maintenance/sess-1/no-such-project", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetProjectSession_Success(t *testing.T) {
	h, _ := setup(t)

	router := gin.New()
	h.RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/v1/maintenance/sess-1/project-a", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
