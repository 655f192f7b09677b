// Package httpapi wires fenixd's HTTP frontend: the admin-facing session
// lifecycle endpoints plus the Project Reply Gateway (C5), behind the
// same middleware chain (request id, structured logging, recovery,
// timeout, body size limit, rate limiting) the source material's own API
// server runs.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/openstack-archive/fenix/internal/apperrors"
	"github.com/openstack-archive/fenix/internal/manager"
	"github.com/openstack-archive/fenix/internal/middleware"
	"github.com/openstack-archive/fenix/internal/reply"
)

// Options configures the router.
type Options struct {
	AdminAPIKey      string
	RateLimitEnabled bool
	RateLimitRPM     int
}

// NewRouter builds the gin engine serving fenixd's v1 API.
func NewRouter(mgr *manager.Manager, opts Options) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(apperrors.Recovery())
	router.Use(apperrors.ErrorHandler())
	router.Use(middleware.StructuredLogger())
	router.Use(middleware.Timeout(middleware.DefaultTimeoutConfig()))
	router.Use(middleware.RequestSizeLimiter(1 << 20)) // 1 MiB: session payloads are small JSON

	if opts.RateLimitEnabled {
		rps := float64(opts.RateLimitRPM) / 60.0
		limiter := middleware.NewRateLimiter(rps, opts.RateLimitRPM)
		router.Use(limiter.Middleware())
	}

	router.GET("/healthz", func(c *gin.Context) { c.Status(200) })

	sessions := NewSessionHandler(mgr)
	admin := middleware.NewAdminAuth(opts.AdminAPIKey)

	v1 := router.Group("/v1")
	adminGroup := v1.Group("/maintenance")
	adminGroup.Use(admin.RequireAPIKey())
	adminGroup.POST("", sessions.CreateSession)
	adminGroup.GET("", sessions.ListSessions)
	adminGroup.GET("/:session_id", sessions.GetSession)
	adminGroup.DELETE("/:session_id", sessions.DeleteSession)

	replyHandler := reply.NewHandler(mgr)
	replyHandler.RegisterRoutes(router)

	return router
}
