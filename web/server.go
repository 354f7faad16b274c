// Package web serves the RACO HTTP API: server registry and workflow
// management, prometheus metrics and the MCP streamable endpoint.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/avrabe/raco"
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/servers/registry"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const DefaultAddr = "127.0.0.1:3000"

// Connector attaches registered servers to the client hub when they are
// activated and detaches them on deactivation.
type Connector interface {
	Connect(ctx context.Context, info *registry.ServerInfo) error
	Disconnect(ctx context.Context, name string) error
}

// Server is the HTTP API.
type Server struct {
	echo      *echo.Echo
	addr      string
	runtime   *raco.Runtime
	registry  *registry.Registry
	connector Connector
	mcp       http.Handler
	origins   []string
	stdio     bool
	metrics   *Metrics
	logger    *logging.Logger
}

// Option configures a Server.
type Option func(s *Server)

func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

func WithConnector(connector Connector) Option {
	return func(s *Server) {
		s.connector = connector
	}
}

// WithAllowOrigins sets the browser origins allowed to call the API. With no
// origin configured cross-origin requests are refused.
func WithAllowOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithStdioServers allows registering servers launched as local commands.
func WithStdioServers(allow bool) Option {
	return func(s *Server) {
		s.stdio = allow
	}
}

// WithMCPHandler mounts handler at /mcp.
func WithMCPHandler(handler http.Handler) Option {
	return func(s *Server) {
		s.mcp = handler
	}
}

// New creates the API over the engine runtime and the server registry.
func New(runtime *raco.Runtime, reg *registry.Registry, opts ...Option) *Server {
	ret := &Server{addr: DefaultAddr, runtime: runtime, registry: reg}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.logger == nil {
		ret.logger = logging.NewNop()
	}
	ret.logger = ret.logger.Named("web")
	if ret.metrics == nil {
		ret.metrics = NewMetrics()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(ret.metrics.Middleware())
	e.Use(ret.requestLogger)
	ret.echo = e
	ret.registerRoutes()
	return ret
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := logging.WithRequestID(c.Request().Context(), requestID)
		c.SetRequest(c.Request().WithContext(ctx))
		err := next(c)
		s.logger.Debug(ctx, "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "RACO Web API")
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	if s.mcp != nil {
		e.Any("/mcp", echo.WrapHandler(s.mcp), s.checkOrigin)
	}

	api := e.Group("/api", s.checkOrigin)
	if len(s.origins) > 0 {
		api.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: s.origins}))
	}
	api.GET("/servers", s.listServers)
	api.POST("/servers", s.registerServer)
	api.POST("/servers/:id/activate", s.activateServer)
	api.POST("/servers/:id/deactivate", s.deactivateServer)
	api.DELETE("/servers/:id", s.unregisterServer)

	api.POST("/workflows", s.createWorkflow)
	api.GET("/workflows", s.listWorkflows)
	api.GET("/workflows/:id", s.getWorkflow)
	api.POST("/workflows/:id/start", s.startWorkflow)
	api.POST("/workflows/:id/cancel", s.cancelWorkflow)
	api.POST("/workflows/:id/steps/:step/input", s.provideInput)
	api.POST("/workflows/:id/steps/:step/decision", s.decide)
}

// checkOrigin rejects browser requests coming from an origin that is not
// allowed. Requests without an Origin header (CLI, SDK clients) pass.
func (s *Server) checkOrigin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		origin := c.Request().Header.Get(echo.HeaderOrigin)
		if origin == "" || s.allowedOrigin(origin) {
			return next(c)
		}
		s.logger.Warn(c.Request().Context(), "cross-origin request refused", zap.String("origin", origin))
		return c.JSON(http.StatusForbidden, errorResponse{Error: "origin not allowed: " + origin})
	}
}

func (s *Server) allowedOrigin(origin string) bool {
	for _, candidate := range s.origins {
		if candidate == "*" || candidate == origin {
			return true
		}
	}
	return false
}

// Handler returns the HTTP handler, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", s.addr))
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
