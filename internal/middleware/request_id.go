// Package middleware holds fenixd's generic HTTP middleware: request id
// correlation, structured access logging, per-request timeout, request
// body size limiting, and per-IP rate limiting.
//
// This file implements request ID generation and correlation, so every
// log line and response for a request can be tied back together across
// the admin session-lifecycle API and the Project Reply Gateway.
//
// Usage:
//
//	router.Use(middleware.RequestID())
//
//	func MyHandler(c *gin.Context) {
//	    requestID := middleware.GetRequestID(c)
//	}
//
//	// A caller can also supply its own id for cross-service tracing:
//	// curl -H "X-Request-ID: my-trace-id" https://fenixd.example.com/v1/maintenance
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the header name for request ID
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the context key for request ID
	RequestIDKey = "request_id"
)

// RequestID middleware generates or extracts a correlation ID for each request
// This enables request tracing across distributed systems and log correlation
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Try to get request ID from header first (for distributed tracing)
		requestID := c.GetHeader(RequestIDHeader)

		// If not provided, generate a new UUID
		if requestID == "" {
			requestID = uuid.New().String()
		}

		// Store in context for use by handlers
		c.Set(RequestIDKey, requestID)

		// Set response header so client can reference this request
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// GetRequestID retrieves the request ID from the Gin context
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}
