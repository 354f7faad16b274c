// Command raco is the command line interface of the RACO orchestrator.
package main

import (
	"context"
	"os"
	"os/signal"
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
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// options are shared by every sub command; cfg and logger are set before
// a sub command runs.
type options struct {
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *logging.Logger
}

func (o *options) load(ctx context.Context) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	if err = fsutil.EnsureDir(ctx, cfg.DataDir); err != nil {
		return err
	}
	logger.Debug(ctx, "configuration loaded", zap.String("data_dir", cfg.DataDir))
	o.cfg, o.logger = cfg, logger
	return nil
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "raco",
		Short: "RACO - AI code orchestrator",
		Long: `raco orchestrates code workflows: graphs of human input, approval,
code generation and action steps executed against MCP servers.`,
		Version:      app.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "configuration file (default ~/.config/raco.toml)")
	root.AddCommand(
		newStartCmd(opts),
		newInitCmd(opts),
		newServersCmd(opts),
		newRunCmd(opts),
		newWorkflowCmd(opts),
		newMCPCmd(opts),
	)
	return root
}
