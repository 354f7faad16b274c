package main

import (
	"encoding/json"
	"fmt"

	"github.com/avrabe/raco/internal/app"
	"github.com/avrabe/raco/mcp/client"
	"github.com/avrabe/raco/mcp/protocol"
	"github.com/avrabe/raco/servers/host"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runOutput struct {
	Status  protocol.ResponseStatus `json:"status"`
	Payload map[string]interface{}  `json:"payload,omitempty"`
}

func newRunCmd(opts *options) *cobra.Command {
	var server, command, arguments string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a command on a server",
		Long: `Run one command against a local server and print the JSON response.
--args holds the command fields as a JSON object.

Examples:
  raco run --server filesystem --command list --args '{"path":".","recursive":true}'
  raco run --server process --command exec --args '{"command":"go version"}'
  raco run --server git --command log --args '{"limit":5}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			payload := map[string]interface{}{}
			if arguments != "" {
				if err := json.Unmarshal([]byte(arguments), &payload); err != nil {
					return fmt.Errorf("invalid --args: %w", err)
				}
			}
			payload["type"] = command
			srv, err := host.New(app.Name, app.Version,
				host.WithRoot(opts.cfg.Servers.Root),
				host.WithAllow(opts.cfg.Servers.Allow...),
				host.WithLogger(opts.logger))
			if err != nil {
				return err
			}
			defer srv.Close(ctx)
			c, err := client.NewFactory(client.WithLogger(opts.logger)).NewInMemoryClient(ctx, srv.Server())
			if err != nil {
				return err
			}
			if err = c.Connect(ctx); err != nil {
				return err
			}
			defer c.Disconnect(ctx)
			opts.logger.Info(ctx, "running command", zap.String("server", server), zap.String("command", command))
			output := &runOutput{}
			status, err := c.SendRequest(ctx, server, protocol.CommandExecute, payload, &output.Payload)
			if err != nil {
				return err
			}
			output.Status = *status
			data, err := json.MarshalIndent(output, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return status.Err()
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", "", "server type (filesystem, process, git)")
	cmd.Flags().StringVar(&command, "command", "", "command type, e.g. list or exec")
	cmd.Flags().StringVarP(&arguments, "args", "a", "", "command arguments as JSON")
	_ = cmd.MarkFlagRequired("server")
	_ = cmd.MarkFlagRequired("command")
	return cmd
}
