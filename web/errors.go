package web

import (
	"errors"
	"net/http"

	"github.com/avrabe/raco"
	"github.com/avrabe/raco/servers"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, raco.ErrWorkflowNotFound),
		errors.Is(err, raco.ErrStepNotFound),
		errors.Is(err, servers.ErrServerNotFound):
		return http.StatusNotFound
	case errors.Is(err, raco.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, raco.ErrCycle), errors.Is(err, raco.ErrInvalidDependency):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c echo.Context, err error) error {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(c.Request().Context(), "request failed", zap.Error(err))
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: message})
}
