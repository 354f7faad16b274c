// Command raco-web serves the RACO HTTP API without the rest of the CLI.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/avrabe/raco/internal/app"
	"github.com/avrabe/raco/internal/config"
	"github.com/avrabe/raco/internal/fsutil"
	"github.com/avrabe/raco/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	var configPath, addr string
	cmd := &cobra.Command{
		Use:          "raco-web",
		Short:        "Serve the RACO HTTP API",
		Version:      app.Version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				if err = applyAddr(cfg, addr); err != nil {
					return err
				}
			}
			logger, err := logging.NewLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if err = fsutil.EnsureDir(ctx, cfg.DataDir); err != nil {
				return err
			}
			logger.Info(ctx, "starting web server", zap.String("addr", cfg.Web.Addr()))
			return app.Serve(ctx, cfg, app.WithLogger(logger))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "configuration file (default ~/.config/raco.toml)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address host:port, overrides [web]")
	return cmd
}

func applyAddr(cfg *config.Config, addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid --addr %q: %w", addr, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid --addr port %q: %w", port, err)
	}
	if host != "" {
		cfg.Web.Host = host
	}
	cfg.Web.Port = p
	return nil
}
