package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, root string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "raco.toml")
	content := fmt.Sprintf("data_dir = %q\n\n[log]\nlevel = \"error\"\n\n[servers]\nroot = %q\n", filepath.Join(dir, "data"), root)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestInitAndWorkflowRun(t *testing.T) {
	parent := t.TempDir()
	configPath := writeConfig(t, parent)

	out, err := execute(t, "", "--config", configPath, "init", "--name", "demo", "--directory", parent)
	require.NoError(t, err)
	project := filepath.Join(parent, "demo")
	assert.Contains(t, out, "Project demo")
	assert.FileExists(t, filepath.Join(project, "raco.toml"))
	assert.FileExists(t, filepath.Join(project, "workflows", "hello.yaml"))

	_, err = execute(t, "", "--config", configPath, "init", "--name", "demo", "--directory", parent)
	assert.ErrorContains(t, err, "already initialized")

	projectConfig := filepath.Join(project, "raco.toml")
	out, err = execute(t, "", "--config", projectConfig, "workflow", "validate", filepath.Join(project, "workflows", "hello.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "workflow hello is valid (2 steps)")

	out, err = execute(t, "hello world\n", "--config", projectConfig, "workflow", "run", filepath.Join(project, "workflows", "hello.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "What should the greeting say?")
	assert.Contains(t, out, `"status": "completed"`)
	data, err := os.ReadFile(filepath.Join(project, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestWorkflowValidate_Invalid(t *testing.T) {
	configPath := writeConfig(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "cycle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`name: cycle
steps:
  - name: a
    type: human_input
    dependsOn: [b]
  - name: b
    type: human_input
    dependsOn: [a]
`), 0o644))
	_, err := execute(t, "", "--config", configPath, "workflow", "validate", path)
	assert.ErrorContains(t, err, "workflow cycle is invalid")
}

func TestServers(t *testing.T) {
	configPath := writeConfig(t, t.TempDir())
	out, err := execute(t, "", "--config", configPath, "servers")
	require.NoError(t, err)
	assert.Contains(t, out, "Available servers:")
	assert.Contains(t, out, "- filesystem: Local filesystem server")
	assert.Contains(t, out, "- git: Git repository server")
	assert.NotContains(t, out, "Registered servers:")
}

func TestRun(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main"), 0o644))
	configPath := writeConfig(t, root)

	out, err := execute(t, "", "--config", configPath, "run", "--server", "filesystem", "--command", "read", "--args", `{"path":"main.go"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"content": "package main"`)

	out, err = execute(t, "", "--config", configPath, "run", "-s", "filesystem", "--command", "read", "-a", `{"path":"../outside"}`)
	assert.Error(t, err)
	assert.Contains(t, out, `"code": 1`)

	_, err = execute(t, "", "--config", configPath, "run", "--server", "filesystem", "--command", "list", "--args", "{")
	assert.ErrorContains(t, err, "invalid --args")
}
