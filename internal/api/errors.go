package api

import (
	"errors"
	"net/http"

	"cronos/internal/manager"
	"cronos/internal/messaging"
	"cronos/internal/proxy"
	"cronos/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`             // error code
	Message string `json:"message"`           // human readable
	Details string `json:"details,omitempty"` // underlying error
}

const (
	CodeBadRequest      = "bad_request"
	CodeValidationError = "validation_error"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeUnavailable     = "unavailable"
	CodeTimeout         = "timeout"
	CodeServerError     = "server_error"
)

// statusFor maps domain errors to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrInvalidIdentity), errors.Is(err, proxy.ErrInvalidProxy):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, proxy.ErrEmptyPool), errors.Is(err, session.ErrSessionClosed):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, messaging.ErrNotAuthenticated):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, session.ErrLoginDetectionTimeout):
		return http.StatusGatewayTimeout, CodeTimeout
	case errors.Is(err, manager.ErrManagerClosed):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeServerError
	}
}

// fail writes err with its mapped status. Server errors are logged.
func fail(c *gin.Context, logger *zap.Logger, message string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(message,
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Error(err))
	}
	c.JSON(status, ErrorResponse{Error: code, Message: message, Details: err.Error()})
}

func validationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   CodeValidationError,
		Message: "request validation failed",
		Details: err.Error(),
	})
}

func notFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   CodeNotFound,
		Message: resource + " not found",
	})
}
