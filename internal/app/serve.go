package app

import (
	"context"
	"time"

	"github.com/avrabe/raco/internal/config"
	"github.com/avrabe/raco/web"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Serve runs the orchestrator with the HTTP API on cfg.Web until ctx is
// done. The API mounts the local servers at /mcp.
func Serve(ctx context.Context, cfg *config.Config, opts ...Option) error {
	metrics := web.NewMetrics()
	a, err := New(ctx, cfg, append(opts, WithEventSinks(metrics))...)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			a.Logger.Warn(closeCtx, "shutdown finished with errors", zap.Error(err))
		}
	}()
	if err = a.Start(ctx); err != nil {
		return err
	}
	server := web.New(a.Runtime, a.Registry,
		web.WithAddr(cfg.Web.Addr()),
		web.WithAllowOrigins(cfg.Web.AllowOrigins...),
		web.WithStdioServers(cfg.Web.AllowStdio),
		web.WithLogger(a.Logger),
		web.WithMetrics(metrics),
		web.WithConnector(a),
		web.WithMCPHandler(a.Host.Handler()),
	)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	select {
	case err = <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
