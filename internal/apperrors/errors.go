// Package apperrors provides the maintenance engine's standardized error
// taxonomy: a machine-readable code, an HTTP status mapping, and an
// optional details string for server-side logging.
package apperrors

import (
	"fmt"
	"net/http"
)

// AppError is a structured application error with HTTP context.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorResponse is the JSON body written for a failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error codes, one per kind named in the error handling design.
const (
	ErrCodeDuplicate         = "DUPLICATE"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInvalidSession    = "INVALID_SESSION"
	ErrCodeTooManySessions   = "TOO_MANY_SESSIONS"
	ErrCodeProjectNack       = "PROJECT_NACK"
	ErrCodeProjectTimeout    = "PROJECT_TIMEOUT"
	ErrCodeComputePlaneError = "COMPUTE_PLANE_ERROR"
	ErrCodeUnsupportedAction = "UNSUPPORTED_ACTION"
	ErrCodeConfigurationErr  = "CONFIGURATION_ERROR"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

func statusFor(code string) int {
	switch code {
	case ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeNotFound, ErrCodeInvalidSession:
		return http.StatusNotFound
	case ErrCodeDuplicate, ErrCodeProjectNack:
		return http.StatusConflict
	case ErrCodeTooManySessions:
		return 509 // Too many sessions, matching the original API's status
	case ErrCodeProjectTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeUnsupportedAction:
		return http.StatusNotImplemented
	case ErrCodeComputePlaneError, ErrCodeConfigurationErr, ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New creates an AppError with no extra detail.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusFor(code)}
}

// Wrap attaches an underlying error's text as Details.
func Wrap(code, message string, err error) *AppError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &AppError{Code: code, Message: message, Details: details, StatusCode: statusFor(code)}
}

func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Code, Message: e.Message, Code: e.Code, Details: e.Details}
}

// Constructors matching the spec's error kinds.

func Duplicate(resource string) *AppError {
	return New(ErrCodeDuplicate, fmt.Sprintf("%s already exists", resource))
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InvalidSession(sessionID string) *AppError {
	return New(ErrCodeInvalidSession, fmt.Sprintf("session %s is invalid or unknown", sessionID))
}

func TooManySessions(max int) *AppError {
	return New(ErrCodeTooManySessions, fmt.Sprintf("too many active sessions: max %d", max))
}

func ProjectNack(projectID string) *AppError {
	return New(ErrCodeProjectNack, fmt.Sprintf("project %s declined (NACK)", projectID))
}

func ProjectTimeout(projectID string) *AppError {
	return New(ErrCodeProjectTimeout, fmt.Sprintf("project %s did not reply in time", projectID))
}

func ComputePlaneError(err error) *AppError {
	return Wrap(ErrCodeComputePlaneError, "compute plane operation failed", err)
}

func UnsupportedAction(action string) *AppError {
	return New(ErrCodeUnsupportedAction, fmt.Sprintf("action %s is not supported", action))
}

func ConfigurationError(message string) *AppError {
	return New(ErrCodeConfigurationErr, message)
}

func ValidationFailed(message string) *AppError {
	return New(ErrCodeValidationFailed, message)
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func StoreError(err error) *AppError {
	return Wrap(ErrCodeInternal, "session store operation failed", err)
}
