package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openstack-archive/fenix/internal/apperrors"
	"github.com/openstack-archive/fenix/internal/manager"
	"github.com/openstack-archive/fenix/internal/session"
	"github.com/openstack-archive/fenix/internal/workflows"
)

// SessionHandler serves the admin-facing maintenance session lifecycle
// endpoints.
type SessionHandler struct {
	manager *manager.Manager
}

// NewSessionHandler constructs a SessionHandler backed by mgr.
func NewSessionHandler(mgr *manager.Manager) *SessionHandler {
	return &SessionHandler{manager: mgr}
}

// createSessionRequest is the body POST /v1/maintenance accepts.
type createSessionRequest struct {
	ComputeHosts    []string               `json:"compute_hosts"`
	ControllerHosts []string               `json:"controller_hosts"`
	Workflow        string                 `json:"workflow"`
	MaintenanceAt   time.Time              `json:"maintenance_at" binding:"required"`
	Metadata        string                 `json:"metadata"`
	ActionPlugins   []actionPluginRequest  `json:"action_plugins"`
}

type actionPluginRequest struct {
	Plugin string `json:"plugin" binding:"required"`
	Type   string `json:"type" binding:"required"`
	Meta   string `json:"meta"`
}

func respondErr(c *gin.Context, e *apperrors.AppError) {
	c.JSON(e.StatusCode, e.ToResponse())
}

// CreateSession starts a new maintenance session, the REST equivalent of
// the source material's EngineEndpoint.create_session RPC.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperrors.ValidationFailed("invalid session request: "+err.Error()))
		return
	}

	// compute_hosts may be omitted: manager.Create discovers the current
	// compute fleet via the Compute Adapter's ListServices in that case
	// (spec.md §3 lifecycle: hosts come "either from the admin-supplied
	// list or by discovery via C2 at session start").
	if req.Workflow == "" {
		req.Workflow = "default"
	}
	if _, err := workflows.Get(req.Workflow); err != nil {
		respondErr(c, apperrors.ValidationFailed(err.Error()))
		return
	}

	sessionID := uuid.NewString()

	plugins := make([]session.ActionPlugin, 0, len(req.ActionPlugins))
	for _, p := range req.ActionPlugins {
		plugins = append(plugins, session.ActionPlugin{
			SessionID: sessionID,
			Plugin:    p.Plugin,
			Type:      session.ActionPluginType(p.Type),
			Meta:      p.Meta,
		})
	}

	err := h.manager.Create(c.Request.Context(), manager.CreateOptions{
		SessionID:       sessionID,
		ComputeHosts:    req.ComputeHosts,
		ControllerHosts: req.ControllerHosts,
		Workflow:        req.Workflow,
		MaintenanceAt:   req.MaintenanceAt,
		Meta:            req.Metadata,
		ActionPlugins:   plugins,
	})
	if err != nil {
		switch {
		case errors.Is(err, manager.ErrMaxSessions):
			respondErr(c, apperrors.TooManySessions(manager.MaxSessions))
		case errors.Is(err, manager.ErrDuplicateSession):
			respondErr(c, apperrors.ValidationFailed(err.Error()))
		case errors.Is(err, manager.ErrUnknownWorkflow):
			respondErr(c, apperrors.ValidationFailed(err.Error()))
		default:
			respondErr(c, apperrors.StoreError(err))
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session_id": sessionID})
}

// ListSessions reports every currently running session id.
func (h *SessionHandler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.manager.List()})
}

// GetSession reports one session's current state.
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	engine, ok := h.manager.Get(sessionID)
	if !ok {
		respondErr(c, apperrors.InvalidSession(sessionID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"state":      engine.State(),
	})
}

// DeleteSession stops and removes a session, the REST equivalent of
// admin_delete_session.
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if err := h.manager.Remove(c.Request.Context(), sessionID); err != nil {
		respondErr(c, apperrors.InvalidSession(sessionID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID})
}
