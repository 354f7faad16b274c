package client

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/avrabe/raco/mcp/protocol"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoPayload struct {
	Text string `json:"text"`
}

func newEchoServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "echo", Version: "test"}, nil)
	mcp.AddTool(server, &mcp.Tool{Name: "echo", Description: "echoes the payload"},
		func(ctx context.Context, req *mcp.CallToolRequest, in protocol.Request[echoPayload]) (*mcp.CallToolResult, protocol.Response[echoPayload], error) {
			if in.Payload.Text == "fail" {
				return nil, protocol.Response[echoPayload]{}, errors.New("asked to fail")
			}
			var resp *protocol.Response[echoPayload]
			if in.Payload.Text == "" {
				resp = protocol.NewErrorResponse(&in, in.Payload, 1, "empty text")
			} else {
				resp = protocol.NewResponse(&in, echoPayload{Text: "echo: " + in.Payload.Text})
			}
			data, err := json.Marshal(resp)
			if err != nil {
				return nil, protocol.Response[echoPayload]{}, err
			}
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}, *resp, nil
		})
	return server
}

const stdioServerEnv = "RACO_CLIENT_TEST_STDIO_SERVER"

// TestMain doubles the test binary as an MCP echo server on stdio.
func TestMain(m *testing.M) {
	if os.Getenv(stdioServerEnv) == "1" {
		if err := newEchoServer().Run(context.Background(), &mcp.StdioTransport{}); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func connected(t *testing.T, opts ...Option) *Client {
	t.Helper()
	ctx := context.Background()
	c, err := NewFactory(opts...).NewInMemoryClient(ctx, newEchoServer())
	require.NoError(t, err)
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })
	return c
}

func TestClient_ConnectDisconnect(t *testing.T) {
	ctx := context.Background()
	c, err := NewFactory().NewInMemoryClient(ctx, newEchoServer())
	require.NoError(t, err)
	assert.False(t, c.Connected())

	_, err = c.SendRequest(ctx, "echo", protocol.CommandExecute, echoPayload{Text: "x"}, nil)
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, c.Connect(ctx))
	assert.True(t, c.Connected())
	assert.ErrorIs(t, c.Connect(ctx), ErrAlreadyConnected)

	require.NoError(t, c.Disconnect(ctx))
	assert.False(t, c.Connected())
	assert.NoError(t, c.Disconnect(ctx))
}

func TestClient_SendRequest(t *testing.T) {
	ctx := context.Background()
	c := connected(t)

	var out echoPayload
	status, err := c.SendRequest(ctx, "echo", protocol.CommandExecute, echoPayload{Text: "hi"}, &out)
	require.NoError(t, err)
	assert.True(t, status.IsSuccess())
	assert.Equal(t, "echo: hi", out.Text)

	status, err = c.SendRequest(ctx, "echo", protocol.CommandExecute, echoPayload{}, nil)
	require.NoError(t, err)
	assert.False(t, status.IsSuccess())
	assert.Equal(t, "empty text", status.Message)

	_, err = c.SendRequest(ctx, "echo", protocol.CommandExecute, echoPayload{Text: "fail"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asked to fail")
}

func TestClient_ListTools(t *testing.T) {
	c := connected(t)
	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)
}

func TestClient_RateLimit(t *testing.T) {
	c := connected(t, WithRateLimit(1, 1))
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := c.ListTools(ctx)
	require.NoError(t, err)
	_, err = c.ListTools(ctx)
	assert.Error(t, err)
}

func TestHub(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	c, err := NewFactory().NewInMemoryClient(ctx, newEchoServer())
	require.NoError(t, err)

	require.NoError(t, hub.Add(ctx, "echo", c))
	assert.True(t, c.Connected())
	assert.Equal(t, []string{"echo"}, hub.Names())

	got, err := hub.Get("echo")
	require.NoError(t, err)
	assert.Same(t, c, got)
	_, err = hub.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownServer)

	require.NoError(t, hub.Remove(ctx, "echo"))
	assert.False(t, c.Connected())
	assert.Empty(t, hub.Names())
	require.NoError(t, hub.Close(ctx))
}

func TestClient_Reconnect(t *testing.T) {
	executable, err := os.Executable()
	require.NoError(t, err)
	t.Setenv(stdioServerEnv, "1")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	inMemory, err := NewFactory().NewInMemoryClient(ctx, newEchoServer())
	require.NoError(t, err)

	testCases := []struct {
		description string
		client      *Client
	}{
		{description: "in memory", client: inMemory},
		{description: "stdio", client: NewFactory().NewStdioClient(executable, "-test.run=^$")},
	}
	for _, tc := range testCases {
		for i := 0; i < 2; i++ {
			require.NoError(t, tc.client.Connect(ctx), tc.description)
			out := &echoPayload{}
			status, err := tc.client.SendRequest(ctx, "echo", protocol.CommandExecute, echoPayload{Text: "again"}, out)
			require.NoError(t, err, tc.description)
			assert.True(t, status.IsSuccess(), tc.description)
			assert.Equal(t, "echo: again", out.Text, tc.description)
			require.NoError(t, tc.client.Disconnect(ctx), tc.description)
		}
	}
}
