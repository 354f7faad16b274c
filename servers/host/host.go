// Package host exposes the filesystem, process and git servers as tools of
// one MCP server. Every tool takes a protocol.Request envelope and answers
// with the protocol.Response, both as JSON text and structured content.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/mcp/protocol"
	"github.com/avrabe/raco/servers"
	"github.com/avrabe/raco/servers/filesystem"
	"github.com/avrabe/raco/servers/git"
	"github.com/avrabe/raco/servers/process"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Server hosts the local servers.
type Server struct {
	name       string
	version    string
	root       string
	allow      []string
	logger     *logging.Logger
	mcp        *mcp.Server
	filesystem *filesystem.Server
	process    *process.Server
	git        *git.Server
	tools      []string
}

// Option configures a Server.
type Option func(s *Server)

func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRoot sets the directory the filesystem and git servers are jailed to.
func WithRoot(root string) Option {
	return func(s *Server) {
		s.root = root
	}
}

// WithAllow restricts the exposed server types; empty exposes all.
func WithAllow(types ...string) Option {
	return func(s *Server) {
		s.allow = types
	}
}

func WithFilesystem(server *filesystem.Server) Option {
	return func(s *Server) {
		s.filesystem = server
	}
}

func WithProcess(server *process.Server) Option {
	return func(s *Server) {
		s.process = server
	}
}

func WithGit(server *git.Server) Option {
	return func(s *Server) {
		s.git = server
	}
}

// New builds the MCP server and registers one tool per allowed type.
func New(name, version string, opts ...Option) (*Server, error) {
	ret := &Server{name: name, version: version, root: "."}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.logger == nil {
		ret.logger = logging.NewNop()
	}
	for _, t := range ret.allow {
		if !isKnown(t) {
			return nil, fmt.Errorf("%w: server type %q", servers.ErrNotSupported, t)
		}
	}
	ret.mcp = mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	if err := ret.init(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Server) init() error {
	var err error
	if s.allowed(servers.TypeFilesystem) {
		if s.filesystem == nil {
			if s.filesystem, err = filesystem.New(s.root, filesystem.WithLogger(s.logger)); err != nil {
				return err
			}
		}
		addTool(s, servers.TypeFilesystem, "Filesystem operations below the server root: list, read, write, delete, diff and patch.", s.filesystem.HandleRequest)
	}
	if s.allowed(servers.TypeProcess) {
		if s.process == nil {
			s.process = process.New(process.WithLogger(s.logger))
		}
		addTool(s, servers.TypeProcess, "Process management: start, stop, list, info and exec.", s.process.HandleRequest)
	}
	if s.allowed(servers.TypeGit) {
		if s.git == nil {
			if s.git, err = git.New(s.root, git.WithLogger(s.logger)); err != nil {
				return err
			}
		}
		addTool(s, servers.TypeGit, "Git repository inspection: status, log and branch.", s.git.HandleRequest)
	}
	return nil
}

func addTool[C, R any](s *Server, name, description string, handle func(context.Context, *protocol.Request[C]) *protocol.Response[R]) {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: name, Description: description},
		func(ctx context.Context, req *mcp.CallToolRequest, in protocol.Request[C]) (*mcp.CallToolResult, protocol.Response[R], error) {
			response := handle(ctx, &in)
			data, err := json.Marshal(response)
			if err != nil {
				return nil, protocol.Response[R]{}, err
			}
			if !response.Status.IsSuccess() {
				s.logger.Debug(ctx, "tool returned error status", zap.String("tool", name), zap.String("message", response.Status.Message))
			}
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}, *response, nil
		})
	s.tools = append(s.tools, name)
}

func (s *Server) allowed(serverType string) bool {
	if len(s.allow) == 0 {
		return true
	}
	for _, t := range s.allow {
		if t == serverType {
			return true
		}
	}
	return false
}

func isKnown(serverType string) bool {
	for _, t := range servers.Types() {
		if t == serverType {
			return true
		}
	}
	return false
}

// Tools returns the names of the registered tools.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// Server returns the underlying MCP server, e.g. for in-memory clients.
func (s *Server) Server() *mcp.Server {
	return s.mcp
}

// Serve runs the server over stdio until ctx is done or the peer hangs up.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info(ctx, "serving MCP over stdio", zap.String("name", s.name), zap.Strings("tools", s.tools))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", servers.ErrMCP, err)
	}
	return nil
}

// Handler returns a streamable HTTP handler serving the same tools.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
}

// Close stops background processes started through the process tool.
func (s *Server) Close(ctx context.Context) error {
	if s.process == nil {
		return nil
	}
	return s.process.Close(ctx)
}
