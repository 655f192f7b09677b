// Package middleware provides HTTP middleware for fenixd's v1 API.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openstack-archive/fenix/internal/logger"
)

// AdminAuth validates the admin API key on every admin-facing request:
// session creation, deletion, and anything else that starts or tears
// down maintenance work. It is a single static key rather than the
// per-agent bcrypt-hashed key store this middleware's source material
// used, since fenixd has exactly one administrative caller role, not a
// fleet of individually provisioned agents.
type AdminAuth struct {
	apiKey string
}

// NewAdminAuth constructs an AdminAuth checking against apiKey.
func NewAdminAuth(apiKey string) *AdminAuth {
	return &AdminAuth{apiKey: apiKey}
}

// RequireAPIKey returns a middleware that requires the X-Fenix-Admin-Key
// header to match the configured admin key, using a constant-time
// comparison so response timing can't be used to brute-force it.
func (a *AdminAuth) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-Fenix-Admin-Key")
		if provided == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "missing API key",
				"details": "X-Fenix-Admin-Key header is required",
			})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(a.apiKey)) != 1 {
			logger.HTTP().Warn().Str("remote_addr", c.ClientIP()).Msg("rejected admin request with invalid API key")
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}

		c.Next()
	}
}
