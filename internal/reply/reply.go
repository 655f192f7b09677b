// Package reply implements the Project Reply Gateway (C5): the HTTP
// surface a tenant project PUTs its maintenance decision to, mirroring
// the source material's project_update_session RPC endpoint as a REST
// handler instead.
package reply

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openstack-archive/fenix/internal/apperrors"
	"github.com/openstack-archive/fenix/internal/logger"
	"github.com/openstack-archive/fenix/internal/manager"
	"github.com/openstack-archive/fenix/internal/session"
)

// Handler serves the project reply endpoints.
type Handler struct {
	Manager *manager.Manager
}

// NewHandler constructs a Handler backed by mgr.
func NewHandler(mgr *manager.Manager) *Handler {
	return &Handler{Manager: mgr}
}

// replyRequest is the body a project posts back to accept, decline, or
// acknowledge a maintenance session state.
type replyRequest struct {
	State           string                   `json:"state" binding:"required"`
	InstanceActions map[string]session.Action `json:"instance_actions"`
}

// RegisterRoutes mounts the gateway's endpoints under router.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.PUT("/v1/maintenance/:session_id/:project_id", h.UpdateProjectSession)
	router.GET("/v1/maintenance/:session_id/:project_id", h.GetProjectSession)
}

// UpdateProjectSession records a project's reply (an ACK_<state> or
// NACK_<state> acceptance/decline, plus optionally its chosen action per
// instance) against the session's live Data view, where the Engine's
// WaitProjectsState loop will observe it on its next poll.
func (h *Handler) UpdateProjectSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	projectID := c.Param("project_id")

	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperrors.ValidationFailed("invalid reply body: "+err.Error()))
		return
	}

	engine, ok := h.Manager.Get(sessionID)
	if !ok {
		respondErr(c, apperrors.InvalidSession(sessionID))
		return
	}

	if _, ok := engine.Data.Project(projectID); !ok {
		respondErr(c, apperrors.NotFound("project "+projectID))
		return
	}

	if err := engine.Data.SetProjectState(c.Request.Context(), projectID, req.State); err != nil {
		respondErr(c, apperrors.StoreError(err))
		return
	}
	if len(req.InstanceActions) > 0 {
		engine.Data.SetProjectInstanceActions(projectID, req.InstanceActions)
	}

	logger.Workflow().Info().
		Str("session_id", sessionID).
		Str("project_id", projectID).
		Str("state", req.State).
		Msg("project replied")

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"project_id": projectID,
		"state":      req.State,
	})
}

// GetProjectSession reports the instance ids a project still needs to act
// on within a session, the read-side counterpart of
// project_get_session.
func (h *Handler) GetProjectSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	projectID := c.Param("project_id")

	engine, ok := h.Manager.Get(sessionID)
	if !ok {
		respondErr(c, apperrors.InvalidSession(sessionID))
		return
	}

	if _, ok := engine.Data.Project(projectID); !ok {
		respondErr(c, apperrors.NotFound("project "+projectID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"instance_ids": engine.Data.StateInstanceIDs(projectID),
		"reply_url":    engine.ReplyURL(projectID),
	})
}

func respondErr(c *gin.Context, e *apperrors.AppError) {
	c.JSON(e.StatusCode, e.ToResponse())
}
