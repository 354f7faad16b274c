package main

import (
	"os"
	"path/filepath"

	"github.com/avrabe/raco/internal/app"
	"github.com/avrabe/raco/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newStartCmd(opts *options) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the orchestrator and its HTTP API",
		Long: `Start the workflow engine, the local MCP servers and the HTTP API and run
until interrupted. With --project the servers are rooted at the project
directory and its raco.toml is used unless --config is given.

Examples:
  raco start
  raco start --project ./my-service`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := opts.cfg
			if project != "" {
				projectConfig := filepath.Join(project, config.DefaultConfigFile)
				if _, err := os.Stat(projectConfig); err == nil && opts.configPath == "" {
					loaded, err := config.Load(projectConfig)
					if err != nil {
						return err
					}
					loaded.Log = cfg.Log
					cfg = loaded
				}
				cfg.Servers.Root = project
			}
			opts.logger.Info(ctx, "starting raco session",
				zap.String("project", cfg.Servers.Root),
				zap.String("addr", cfg.Web.Addr()))
			cmd.Printf("RACO listening on http://%s\n", cfg.Web.Addr())
			return app.Serve(ctx, cfg, app.WithLogger(opts.logger))
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "project directory")
	return cmd
}
