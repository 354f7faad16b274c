package web

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/avrabe/raco/servers"
	"github.com/avrabe/raco/servers/registry"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type registerServerRequest struct {
	Name     string            `json:"name"`
	Type     string            `json:"server_type"`
	URI      string            `json:"uri"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Server) listServers(c echo.Context) error {
	infos, err := s.registry.List(c.Request().Context())
	if err != nil {
		return s.fail(c, fmt.Errorf("failed to list servers: %w", err))
	}
	if infos == nil {
		infos = []*registry.ServerInfo{}
	}
	return c.JSON(http.StatusOK, infos)
}

func (s *Server) registerServer(c echo.Context) error {
	request := &registerServerRequest{}
	if err := c.Bind(request); err != nil {
		return badRequest(c, "invalid request body")
	}
	if request.Name == "" {
		return badRequest(c, "name is required")
	}
	if request.URI != "" && !s.stdio && !isRemote(request.URI) {
		return badRequest(c, "only http(s) server URIs can be registered over the API")
	}
	info := &registry.ServerInfo{
		Name:     request.Name,
		Type:     request.Type,
		URI:      request.URI,
		Metadata: request.Metadata,
	}
	if err := s.registry.Register(c.Request().Context(), info); err != nil {
		return s.fail(c, fmt.Errorf("failed to register server: %w", err))
	}
	return c.JSON(http.StatusCreated, info)
}

func (s *Server) activateServer(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if err := s.registry.Activate(ctx, id); err != nil {
		return s.fail(c, err)
	}
	info, err := s.registry.Get(ctx, id)
	if err != nil {
		return s.fail(c, err)
	}
	if info == nil {
		return s.fail(c, fmt.Errorf("%w: %s", servers.ErrServerNotFound, id))
	}
	if s.connector != nil && info.URI != "" {
		if err = s.connector.Connect(ctx, info); err != nil {
			s.logger.Warn(ctx, "failed to connect activated server", zap.String("name", info.Name), zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) deactivateServer(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if err := s.registry.Deactivate(ctx, id); err != nil {
		return s.fail(c, err)
	}
	info, err := s.registry.Get(ctx, id)
	if err != nil {
		return s.fail(c, err)
	}
	if info == nil {
		return s.fail(c, fmt.Errorf("%w: %s", servers.ErrServerNotFound, id))
	}
	if s.connector != nil {
		if err = s.connector.Disconnect(ctx, info.Name); err != nil {
			s.logger.Warn(ctx, "failed to disconnect server", zap.String("name", info.Name), zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) unregisterServer(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	info, err := s.registry.Get(ctx, id)
	if err != nil {
		return s.fail(c, err)
	}
	if info == nil {
		return s.fail(c, fmt.Errorf("%w: %s", servers.ErrServerNotFound, id))
	}
	if err = s.registry.Unregister(ctx, id); err != nil {
		return s.fail(c, err)
	}
	if s.connector != nil {
		_ = s.connector.Disconnect(ctx, info.Name)
	}
	return c.NoContent(http.StatusNoContent)
}

func isRemote(uri string) bool {
	parsed, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
