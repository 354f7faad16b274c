package main

import (
	"github.com/avrabe/raco/internal/app"
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/servers/host"
	"github.com/spf13/cobra"
)

func newMCPCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the local servers over stdio MCP",
		Long: `Serve the filesystem, process and git servers as MCP tools on stdin and
stdout, e.g. for an MCP capable editor or another raco instance:

  raco mcp --config ./raco.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger
			if opts.cfg.Log.Output == "stdout" {
				// stdout carries the protocol
				logConfig := opts.cfg.Log
				logConfig.Output = "stderr"
				var err error
				if logger, err = logging.NewLogger(logConfig); err != nil {
					return err
				}
			}
			srv, err := host.New(app.Name, app.Version,
				host.WithRoot(opts.cfg.Servers.Root),
				host.WithAllow(opts.cfg.Servers.Allow...),
				host.WithLogger(logger))
			if err != nil {
				return err
			}
			defer srv.Close(cmd.Context())
			return srv.Serve(cmd.Context())
		},
	}
}
