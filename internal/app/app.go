// Package app wires configuration into a running orchestrator: logger,
// engine, stores, queue, local MCP servers, the server registry and the
// client hub.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/avrabe/raco"
	"github.com/avrabe/raco/internal/config"
	"github.com/avrabe/raco/internal/fsutil"
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/mcp/client"
	"github.com/avrabe/raco/model"
	"github.com/avrabe/raco/policy"
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/servers/host"
	"github.com/avrabe/raco/servers/registry"
	efs "github.com/avrabe/raco/service/dao/execution/fs"
	ifs "github.com/avrabe/raco/service/dao/instance/fs"
	"github.com/avrabe/raco/service/event"
	mcpaction "github.com/avrabe/raco/service/action/mcp"
	"github.com/avrabe/raco/service/messaging"
	natsqueue "github.com/avrabe/raco/service/messaging/nats"
	"github.com/avrabe/raco/tracing"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	Name    = "raco"
	Version = "0.1.0"
)

// App is an assembled orchestrator.
type App struct {
	Config   *config.Config
	Logger   *logging.Logger
	Service  *raco.Service
	Runtime  *raco.Runtime
	Registry *registry.Registry
	Host     *host.Server
	Hub      *client.Hub
	Factory  *client.Factory

	sinks   []event.Sink
	policy  *policy.Policy
	conn    *nats.Conn
	closers []func(ctx context.Context) error
}

// Option customises New.
type Option func(a *App)

func WithLogger(logger *logging.Logger) Option {
	return func(a *App) {
		a.Logger = logger
	}
}

// WithEventSinks forwards engine events to sinks, e.g. metrics.
func WithEventSinks(sinks ...event.Sink) Option {
	return func(a *App) {
		a.sinks = append(a.sinks, sinks...)
	}
}

// WithPolicy overrides the default ask policy.
func WithPolicy(p *policy.Policy) Option {
	return func(a *App) {
		a.policy = p
	}
}

// New builds every component from cfg. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (ret *App, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	ret = &App{Config: cfg}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.Logger == nil {
		if ret.Logger, err = logging.NewLogger(cfg.Log); err != nil {
			return nil, err
		}
	}
	defer func() {
		if err != nil {
			_ = ret.Close(context.Background())
		}
	}()
	for _, dir := range []string{cfg.DataDir, cfg.Workflows.Dir} {
		if err = fsutil.EnsureDir(ctx, dir); err != nil {
			return nil, err
		}
	}
	if err = ret.initServers(ctx); err != nil {
		return nil, err
	}
	if err = ret.initRegistry(); err != nil {
		return nil, err
	}
	options, err := ret.engineOptions()
	if err != nil {
		return nil, err
	}
	if ret.Service, err = raco.New(options...); err != nil {
		return nil, err
	}
	ret.Runtime = ret.Service.Runtime()
	return ret, nil
}

func (a *App) initServers(ctx context.Context) error {
	var err error
	a.Host, err = host.New(Name, Version,
		host.WithRoot(a.Config.Servers.Root),
		host.WithAllow(a.Config.Servers.Allow...),
		host.WithLogger(a.Logger),
	)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.Host.Close)
	a.Factory = client.NewFactory(client.WithLogger(a.Logger), client.WithName(Name, Version))
	a.Hub = client.NewHub()
	a.closers = append(a.closers, a.Hub.Close)
	local, err := a.Factory.NewInMemoryClient(ctx, a.Host.Server())
	if err != nil {
		return err
	}
	return a.Hub.Add(ctx, mcpaction.DefaultServer, local)
}

func (a *App) initRegistry() (err error) {
	a.Registry, err = NewRegistry(a.Config, a.Logger)
	return err
}

// NewRegistry opens the server registry; with the fs store it persists under
// <data_dir>/servers.
func NewRegistry(cfg *config.Config, logger *logging.Logger) (*registry.Registry, error) {
	options := []registry.Option{registry.WithLogger(logger)}
	if cfg.Store.Vendor == "fs" {
		dao, err := registry.NewFileDAO(filepath.Join(cfg.DataDir, "servers"), logger)
		if err != nil {
			return nil, err
		}
		options = append(options, registry.WithDAO(dao))
	}
	return registry.New(options...), nil
}

func (a *App) engineOptions() ([]raco.Option, error) {
	cfg := a.Config
	options := []raco.Option{
		raco.WithConfig(raco.ConfigFrom(cfg)),
		raco.WithLogger(a.Logger),
		raco.WithHub(a.Hub),
		raco.WithMetaBaseURL(cfg.Workflows.Dir),
		raco.WithEventSinks(a.sinks...),
	}
	if a.policy != nil {
		options = append(options, raco.WithPolicy(a.policy))
	}
	if cfg.Tracing.Enabled {
		options = append(options, raco.WithTracing(Name, Version, cfg.Tracing.Output))
		a.closers = append(a.closers, tracing.Shutdown)
	}
	if cfg.Store.Vendor == "fs" {
		instances, err := ifs.New(filepath.Join(cfg.DataDir, "instances"), a.Logger)
		if err != nil {
			return nil, err
		}
		executions, err := efs.New(filepath.Join(cfg.DataDir, "executions"), a.Logger)
		if err != nil {
			return nil, err
		}
		options = append(options, raco.WithInstanceDAO(instances), raco.WithExecutionDAO(executions))
	}
	if cfg.Queue.Vendor == string(messaging.VendorNats) {
		conn, err := nats.Connect(cfg.Queue.NatsURL, nats.Name(Name))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats %s: %w", cfg.Queue.NatsURL, err)
		}
		a.conn = conn
		queueConfig := natsqueue.DefaultConfig(cfg.Queue.Subject)
		queueConfig.MaxRetries = cfg.Engine.MaxRetries
		queue, err := natsqueue.NewQueue[execution.Execution](conn, queueConfig)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return queue.Close() })
		options = append(options, raco.WithQueue(queue), raco.WithEventSinks(event.NewNatsSink(conn)))
	}
	return options, nil
}

// Start runs the engine, connects active registered servers and, when
// configured, watches the workflow directory.
func (a *App) Start(ctx context.Context) error {
	if err := a.Runtime.Start(ctx); err != nil {
		return err
	}
	a.ConnectRegistered(ctx)
	if a.Config.Workflows.Watch {
		dir := a.Config.Workflows.Dir
		err := a.Runtime.WatchDefinitions(ctx, dir, func(location string, wf *model.Workflow, err error) {
			switch {
			case err != nil:
				a.Logger.Warn(ctx, "workflow reload failed", zap.String("location", location), zap.Error(err))
			case wf == nil:
				a.Logger.Info(ctx, "workflow removed", zap.String("location", location))
			default:
				a.Logger.Info(ctx, "workflow reloaded", zap.String("location", location), zap.String("workflow", wf.Name))
			}
		})
		if err != nil {
			return err
		}
	}
	a.Logger.Info(ctx, "orchestrator started",
		zap.String("data_dir", a.Config.DataDir),
		zap.String("queue", a.Config.Queue.Vendor),
		zap.String("store", a.Config.Store.Vendor),
		zap.Strings("servers", a.Hub.Names()))
	return nil
}

// ConnectRegistered adds a hub client for every active registered server
// with a URI. An http(s) URI uses streamable HTTP, anything else is run as
// a stdio command line. Failures are logged and skipped.
func (a *App) ConnectRegistered(ctx context.Context) {
	infos, err := a.Registry.List(ctx)
	if err != nil {
		a.Logger.Warn(ctx, "failed to list registered servers", zap.Error(err))
		return
	}
	for _, info := range infos {
		if !info.Active || info.URI == "" {
			continue
		}
		if err := a.Connect(ctx, info); err != nil {
			a.Logger.Warn(ctx, "failed to connect server", zap.String("name", info.Name), zap.Error(err))
		}
	}
}

// Connect adds a hub client for info under its name.
func (a *App) Connect(ctx context.Context, info *registry.ServerInfo) error {
	c, err := a.clientFor(info.URI)
	if err != nil {
		return err
	}
	return a.Hub.Add(ctx, info.Name, c)
}

// Disconnect removes the hub client registered under name.
func (a *App) Disconnect(ctx context.Context, name string) error {
	return a.Hub.Remove(ctx, name)
}

func (a *App) clientFor(uri string) (*client.Client, error) {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return a.Factory.NewHTTPClient(uri), nil
	}
	args := strings.Fields(uri)
	if len(args) == 0 {
		return nil, errors.New("empty server uri")
	}
	return a.Factory.NewStdioClient(args[0], args[1:]...), nil
}

// Close stops the engine and releases every resource, last opened first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Runtime != nil {
		if err := a.Runtime.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}
