package apperrors

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openstack-archive/fenix/internal/logger"
)

// ErrorHandler converts the last error added to the Gin context into a
// structured JSON response, logging it at a severity matching its status.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		var appErr *AppError
		if !errors.As(err, &appErr) {
			appErr = Internal(err.Error())
		}

		log := logger.HTTP()
		if appErr.StatusCode >= 500 {
			log.Error().Str("code", appErr.Code).Str("details", appErr.Details).Msg(appErr.Message)
		} else {
			log.Warn().Str("code", appErr.Code).Msg(appErr.Message)
		}

		if !c.Writer.Written() {
			c.JSON(appErr.StatusCode, appErr.ToResponse())
		}
	}
}

// Recovery turns a panic into a 500 AppError response instead of crashing
// the process.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.HTTP().Error().Interface("panic", r).Msg("recovered from panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, Internal("internal error").ToResponse())
			}
		}()
		c.Next()
	}
}

// Abort aborts the request with the given AppError.
func Abort(c *gin.Context, err *AppError) {
	c.Error(err)
	c.Abort()
}
