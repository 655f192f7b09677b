// Package middleware provides HTTP middleware for the maintenance engine API.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openstack-archive/fenix/internal/logger"
)

// StructuredLogger logs every request as a structured zerolog event, tagged
// with the request ID set by RequestID.
func StructuredLogger() gin.HandlerFunc {
	skip := map[string]bool{"/healthz": true}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		event := logger.HTTP().Info()
		if status >= 500 {
			event = logger.HTTP().Error()
		} else if status >= 400 {
			event = logger.HTTP().Warn()
		}

		event.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", raw).
			Int("status", status).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP())

		if len(c.Errors) > 0 {
			event.Str("errors", c.Errors.String())
		}
		event.Msg("request handled")
	}
}
