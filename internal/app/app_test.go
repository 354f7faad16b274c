package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/avrabe/raco/internal/config"
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/internal/natstest"
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/servers"
	"github.com/avrabe/raco/servers/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scaffold = `
name: scaffold
steps:
  - name: write
    action: fs.write
    input:
      path: README.md
      content: "# project"
  - name: list
    action: fs.list
    dependsOn: [write]
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Workflows.Dir = filepath.Join(cfg.DataDir, "workflows")
	cfg.Servers.Root = t.TempDir()
	return cfg
}

func run(t *testing.T, a *App, name string) *execution.Instance {
	t.Helper()
	ctx := context.Background()
	wf, err := a.Runtime.LoadWorkflow(ctx, name)
	require.NoError(t, err)
	id, err := a.Runtime.CreateWorkflow(ctx, wf, nil)
	require.NoError(t, err)
	require.NoError(t, a.Runtime.StartWorkflow(ctx, id))
	instance, err := a.Runtime.Wait(ctx, id, 10*time.Second)
	require.NoError(t, err)
	return instance
}

func TestApp_FileStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Store.Vendor = "fs"
	a, err := New(ctx, cfg, WithLogger(logging.NewNop()))
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	defer a.Close(ctx)

	assert.DirExists(t, cfg.Workflows.Dir)
	assert.Equal(t, []string{"local"}, a.Hub.Names())
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Workflows.Dir, "scaffold.yaml"), []byte(scaffold), 0o644))

	instance := run(t, a, "scaffold")
	require.Equal(t, execution.WorkflowCompleted, instance.Status, instance.Errors)
	data, err := os.ReadFile(filepath.Join(cfg.Servers.Root, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# project", string(data))

	entries, err := os.ReadDir(filepath.Join(cfg.DataDir, "instances"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	info := &registry.ServerInfo{Name: "tools", Type: servers.TypeProcess}
	require.NoError(t, a.Registry.Register(ctx, info))
	stored, err := a.Registry.FindByName(ctx, "tools")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, info.ID, stored.ID)
}

func TestApp_NatsQueue(t *testing.T) {
	ctx := context.Background()
	server := natstest.StartServer(t)
	cfg := testConfig(t)
	cfg.Queue.Vendor = "nats"
	cfg.Queue.NatsURL = server.ClientURL()
	cfg.Queue.Subject = "raco.test.executions"
	a, err := New(ctx, cfg, WithLogger(logging.NewNop()))
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	defer a.Close(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Workflows.Dir, "scaffold.yaml"), []byte(scaffold), 0o644))
	instance := run(t, a, "scaffold")
	assert.Equal(t, execution.WorkflowCompleted, instance.Status, instance.Errors)
}

func TestApp_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Queue.Vendor = "kafka"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Servers.Allow = []string{"debugger"}
	_, err = New(context.Background(), cfg, WithLogger(logging.NewNop()))
	assert.ErrorIs(t, err, servers.ErrNotSupported)
}

func TestApp_ClientFor(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), WithLogger(logging.NewNop()))
	require.NoError(t, err)
	defer a.Close(context.Background())

	_, err = a.clientFor("http://127.0.0.1:3000/mcp")
	assert.NoError(t, err)
	_, err = a.clientFor("raco mcp")
	assert.NoError(t, err)
	_, err = a.clientFor("  ")
	assert.Error(t, err)
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

func TestServe(t *testing.T) {
	cfg := testConfig(t)
	cfg.Web.Port = freePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, cfg, WithLogger(logging.NewNop()))
	}()

	healthURL := fmt.Sprintf("http://%s/health", cfg.Web.Addr())
	require.Eventually(t, func() bool {
		resp, err := http.Get(healthURL)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop")
	}
}
