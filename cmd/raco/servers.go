package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/avrabe/raco/internal/app"
	"github.com/avrabe/raco/servers"
	"github.com/spf13/cobra"
)

var serverDescriptions = map[string]string{
	servers.TypeFilesystem: "Local filesystem server",
	servers.TypeProcess:    "Process management server",
	servers.TypeGit:        "Git repository server",
}

func newServersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List available servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available servers:")
			for _, serverType := range servers.Types() {
				fmt.Fprintf(out, "- %s: %s\n", serverType, serverDescriptions[serverType])
			}
			reg, err := app.NewRegistry(opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			infos, err := reg.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				return nil
			}
			fmt.Fprintln(out, "\nRegistered servers:")
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTYPE\tURI\tACTIVE\tID")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", info.Name, info.Type, info.URI, info.Active, info.ID)
			}
			return w.Flush()
		},
	}
}
