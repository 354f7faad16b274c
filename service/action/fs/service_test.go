package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/avrabe/raco/mcp/client"
	"github.com/avrabe/raco/servers/host"
	"github.com/avrabe/raco/service/action/fs"
	"github.com/avrabe/raco/service/action/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	srv, err := host.New("raco", "test", host.WithRoot(root))
	require.NoError(t, err)
	c, err := client.NewFactory().NewInMemoryClient(ctx, srv.Server())
	require.NoError(t, err)
	hub := client.NewHub()
	require.NoError(t, hub.Add(ctx, mcp.DefaultServer, c))
	defer hub.Close(ctx)

	service := fs.New(hub)
	assert.Len(t, service.Methods(), 6)

	write, err := service.Method("write")
	require.NoError(t, err)
	output := &fs.Output{}
	require.NoError(t, write(ctx, &fs.Input{Path: "out/report.txt", Content: "line\n"}, output))
	assert.EqualValues(t, 5, output.BytesWritten)
	data, err := os.ReadFile(filepath.Join(root, "out", "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))

	list, err := service.Method("list")
	require.NoError(t, err)
	output = &fs.Output{}
	require.NoError(t, list(ctx, &fs.Input{Path: "out"}, output))
	require.Len(t, output.Files, 1)
	assert.Equal(t, "report.txt", output.Files[0].Name)

	diff, err := service.Method("diff")
	require.NoError(t, err)
	output = &fs.Output{}
	require.NoError(t, diff(ctx, &fs.Input{Path: "out/report.txt", Content: "line\nmore\n"}, output))
	assert.Equal(t, 1, output.Added)

	del, err := service.Method("delete")
	require.NoError(t, err)
	assert.Error(t, del(ctx, &fs.Input{Path: "out"}, &fs.Output{}))
	require.NoError(t, del(ctx, &fs.Input{Path: "out", Recursive: true}, &fs.Output{}))
	assert.NoDirExists(t, filepath.Join(root, "out"))

	_, err = service.Method("chmod")
	assert.Error(t, err)
}
