package client

import (
	"context"
	"os/exec"

	"github.com/avrabe/raco/internal/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Factory creates clients sharing the same options.
type Factory struct {
	options []Option
	logger  *logging.Logger
}

// NewFactory creates a factory; options apply to every client it builds.
func NewFactory(options ...Option) *Factory {
	ret := &Factory{options: options}
	probe := &Client{}
	for _, opt := range options {
		opt(probe)
	}
	ret.logger = probe.logger
	if ret.logger == nil {
		ret.logger = logging.NewNop()
	}
	return ret
}

// NewStdioClient runs command as a subprocess speaking MCP on stdio. Every
// Connect starts a new process.
func (f *Factory) NewStdioClient(command string, args ...string) *Client {
	f.logger.Info(context.Background(), "creating MCP client with stdio transport", zap.String("command", command))
	args = append([]string(nil), args...)
	return newClient(func(context.Context) (mcp.Transport, error) {
		return &mcp.CommandTransport{Command: exec.Command(command, args...)}, nil
	}, f.options...)
}

// NewHTTPClient connects to a streamable HTTP endpoint.
func (f *Factory) NewHTTPClient(endpoint string) *Client {
	f.logger.Info(context.Background(), "creating MCP client with streamable HTTP transport", zap.String("endpoint", endpoint))
	return New(&mcp.StreamableClientTransport{Endpoint: endpoint}, f.options...)
}

// NewInMemoryClient connects server in process. The server side session
// is started immediately; the client still needs Connect. A reconnect opens
// a new server session.
func (f *Factory) NewInMemoryClient(ctx context.Context, server *mcp.Server) (*Client, error) {
	clientTransport, err := inMemory(ctx, server)
	if err != nil {
		return nil, err
	}
	return newClient(func(ctx context.Context) (mcp.Transport, error) {
		if clientTransport != nil {
			ret := clientTransport
			clientTransport = nil
			return ret, nil
		}
		return inMemory(ctx, server)
	}, f.options...), nil
}

func inMemory(ctx context.Context, server *mcp.Server) (mcp.Transport, error) {
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	if _, err := server.Connect(ctx, serverTransport, nil); err != nil {
		return nil, err
	}
	return clientTransport, nil
}
