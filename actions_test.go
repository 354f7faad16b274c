package raco_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/avrabe/raco"
	"github.com/avrabe/raco/mcp/client"
	"github.com/avrabe/raco/model"
	"github.com/avrabe/raco/model/graph"
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/servers/host"
	mcpaction "github.com/avrabe/raco/service/action/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntime_ServerActions(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	srv, err := host.New("raco", "test", host.WithRoot(root))
	require.NoError(t, err)
	c, err := client.NewFactory().NewInMemoryClient(ctx, srv.Server())
	require.NoError(t, err)
	hub := client.NewHub()
	require.NoError(t, hub.Add(ctx, mcpaction.DefaultServer, c))
	t.Cleanup(func() {
		_ = hub.Close(context.Background())
		_ = srv.Close(context.Background())
	})
	rt := newRuntime(t, raco.WithHub(hub))

	w := model.NewWorkflow("scaffold")
	w.NewStep("write", graph.TypeAction).WithAction("fs", "write", map[string]interface{}{
		"path":    "src/main.txt",
		"content": "generated",
	})
	w.NewStep("read", graph.TypeAction).WithAction("mcp", "call", map[string]interface{}{
		"tool":    "filesystem",
		"payload": map[string]interface{}{"type": "read", "path": "src/main.txt"},
	}).WithDependsOn("write")
	w.NewStep("check", graph.TypeAction).WithAction("process", "exec", map[string]interface{}{
		"command": "cat src/main.txt",
		"cwd":     root,
	}).WithDependsOn("write")

	id, err := rt.CreateWorkflow(ctx, w, nil)
	require.NoError(t, err)
	require.NoError(t, rt.StartWorkflow(ctx, id))
	instance, err := rt.Wait(ctx, id, 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, execution.WorkflowCompleted, instance.Status, instance.Errors)

	data, err := os.ReadFile(filepath.Join(root, "src", "main.txt"))
	require.NoError(t, err)
	assert.Equal(t, "generated", string(data))

	read, ok := instance.Output(instance.LookupStep("read").ID).(map[string]interface{})
	require.True(t, ok)
	payload, ok := read["payload"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "generated", payload["content"])

	check, ok := instance.Output(instance.LookupStep("check").ID).(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, check["stdout"], "generated")
}
