package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/mcp/protocol"
	"github.com/avrabe/raco/tracing"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrAlreadyConnected = errors.New("mcp client already connected")
	ErrNotConnected     = errors.New("mcp client not connected")
)

const (
	defaultName    = "raco"
	defaultVersion = "0.1.0"
)

// dialer returns the transport used by the next Connect.
type dialer func(ctx context.Context) (mcp.Transport, error)

// Client wraps an MCP client bound to one transport.
type Client struct {
	dial      dialer
	name      string
	version   string
	limiter   *rate.Limiter
	logger    *logging.Logger

	mu      sync.RWMutex
	session *mcp.ClientSession
}

// New creates a disconnected client for transport.
func New(transport mcp.Transport, opts ...Option) *Client {
	return newClient(func(context.Context) (mcp.Transport, error) {
		return transport, nil
	}, opts...)
}

func newClient(dial dialer, opts ...Option) *Client {
	ret := &Client{dial: dial, name: defaultName, version: defaultVersion}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.logger == nil {
		ret.logger = logging.NewNop()
	}
	ret.logger = ret.logger.Named("mcp-client")
	return ret
}

// Connect opens the session. Connecting twice fails with ErrAlreadyConnected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return ErrAlreadyConnected
	}
	c.logger.Info(ctx, "connecting to MCP server")
	transport, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to open MCP transport: %w", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: c.name, Version: c.version}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to MCP server: %w", err)
	}
	c.session = session
	return nil
}

// Disconnect closes the session; it is a no-op when not connected.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()
	if session == nil {
		return nil
	}
	c.logger.Info(ctx, "disconnecting from MCP server")
	return session.Close()
}

func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil
}

// ListTools returns the tools offered by the server.
func (c *Client) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	session, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	result, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool calls a tool with raw arguments.
func (c *Client) CallTool(ctx context.Context, name string, args interface{}) (result *mcp.CallToolResult, err error) {
	session, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := tracing.StartSpan(ctx, "mcp.call "+name, tracing.KindClient)
	span.WithAttributes(map[string]string{"mcp.tool": name})
	defer func() { tracing.EndSpan(span, err) }()
	c.logger.Debug(ctx, "calling tool", zap.String("tool", name))
	return session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
}

// SendRequest wraps payload in a request envelope, calls tool and decodes
// the response payload into out (when non nil). The returned status is the
// server's; a tool error result is returned as an error.
func (c *Client) SendRequest(ctx context.Context, tool string, command protocol.CommandType, payload interface{}, out interface{}) (*protocol.ResponseStatus, error) {
	request := protocol.NewRequest(command, payload)
	result, err := c.CallTool(ctx, tool, request)
	if err != nil {
		return nil, err
	}
	text := TextOf(result)
	if result.IsError {
		return nil, fmt.Errorf("%s: tool error: %s", tool, text)
	}
	response := &protocol.Response[json.RawMessage]{}
	if err = json.Unmarshal([]byte(text), response); err != nil {
		return nil, fmt.Errorf("%s: invalid response: %w", tool, err)
	}
	if response.RequestID != "" && response.RequestID != request.RequestID {
		return nil, fmt.Errorf("%s: response id %s does not match request %s", tool, response.RequestID, request.RequestID)
	}
	if out != nil && len(response.Payload) > 0 {
		if err = json.Unmarshal(response.Payload, out); err != nil {
			return nil, fmt.Errorf("%s: invalid payload: %w", tool, err)
		}
	}
	return &response.Status, nil
}

func (c *Client) acquire(ctx context.Context) (*mcp.ClientSession, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil {
		return nil, ErrNotConnected
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// TextOf joins the text content of a tool result.
func TextOf(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}
