package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/quantopia/internal/models"
	"github.com/yourusername/quantopia/internal/task"
)

// errorResponse is the body of every failed request
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	var cfgErr *models.ConfigurationError
	switch {
	case errors.As(err, &cfgErr), errors.Is(err, models.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrTaskTerminal), errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	case models.IsStrategyError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, task.ErrManagerClosed), errors.Is(err, models.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := errorResponse{Error: err.Error()}
	var cfgErr *models.ConfigurationError
	if errors.As(err, &cfgErr) {
		body.Field = cfgErr.Field
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("route", c.FullPath()).Error("Request error")
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func unavailable(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{Error: what + " is not configured"})
}
