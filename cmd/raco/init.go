package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/avrabe/raco/internal/config"
	"github.com/avrabe/raco/internal/fsutil"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const sampleWorkflow = `name: hello
description: Asks for a greeting and writes it to hello.txt
steps:
  - name: greeting
    type: human_input
    prompt: What should the greeting say?
  - name: write
    action: fs.write
    input:
      path: hello.txt
      content: ${greeting.human_input}
    dependsOn: [greeting]
`

func newInitCmd(opts *options) *cobra.Command {
	var name, directory string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new project",
		Long: `Create a project directory holding raco.toml and a workflows directory
with a sample workflow. The project data is kept under .raco.

Examples:
  raco init --name my-service
  raco init --name my-service --directory ~/src`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if name == "" {
				return errors.New("--name is required")
			}
			if directory == "" {
				directory = "."
			}
			project, err := filepath.Abs(filepath.Join(directory, name))
			if err != nil {
				return err
			}
			configPath := filepath.Join(project, config.DefaultConfigFile)
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("project %s is already initialized", project)
			}
			cfg := config.Default()
			cfg.DataDir = filepath.Join(project, ".raco")
			cfg.Store.Vendor = "fs"
			cfg.Servers.Root = project
			cfg.Workflows.Dir = filepath.Join(project, "workflows")
			for _, dir := range []string{project, cfg.Workflows.Dir} {
				if err := fsutil.EnsureDir(ctx, dir); err != nil {
					return err
				}
			}
			if err := config.Save(configPath, cfg); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(cfg.Workflows.Dir, "hello.yaml"), []byte(sampleWorkflow), 0o644); err != nil {
				return fmt.Errorf("failed to write sample workflow: %w", err)
			}
			opts.logger.Info(ctx, "project initialized", zap.String("name", name), zap.String("directory", project))
			fmt.Fprintf(cmd.OutOrStdout(), "Project %s\nInitialized in %s\n", name, project)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "project name")
	cmd.Flags().StringVarP(&directory, "directory", "d", "", "parent directory (default current directory)")
	return cmd
}
