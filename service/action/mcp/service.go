// Package mcp provides the "mcp.call" action: it sends a protocol request to
// a tool of a server connected through the client hub.
package mcp

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/avrabe/raco/mcp/client"
	"github.com/avrabe/raco/mcp/protocol"
	"github.com/avrabe/raco/model/types"
)

const name = "mcp"

// DefaultServer is the hub name of the in-process server host.
const DefaultServer = "local"

type Input struct {
	Server  string                 `json:"server,omitempty"`
	Tool    string                 `json:"tool"`
	Command string                 `json:"command,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

type Output struct {
	Status  protocol.ResponseStatus `json:"status"`
	Payload map[string]interface{}  `json:"payload,omitempty"`
}

// Service calls MCP tools through a hub.
type Service struct {
	hub *client.Hub
}

func New(hub *client.Hub) *Service {
	return &Service{hub: hub}
}

// Name returns the service name
func (s *Service) Name() string {
	return name
}

// Methods returns the service methods
func (s *Service) Methods() types.Signatures {
	return []types.Signature{
		{
			Name:        "call",
			Description: "Calls an MCP tool with a request envelope and returns the response payload.",
			Input:       reflect.TypeOf(&Input{}),
			Output:      reflect.TypeOf(&Output{}),
		},
	}
}

// Method returns the specified method
func (s *Service) Method(name string) (types.Executable, error) {
	switch strings.ToLower(name) {
	case "call":
		return s.call, nil
	default:
		return nil, types.NewMethodNotFoundError(name)
	}
}

func (s *Service) call(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*Input)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*Output)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	return s.Call(ctx, input, output)
}

// Call sends input.Payload to input.Tool. A response with an error status
// fails the call.
func (s *Service) Call(ctx context.Context, input *Input, output *Output) error {
	if input.Tool == "" {
		return fmt.Errorf("tool is required")
	}
	command := protocol.CommandExecute
	if input.Command != "" {
		var err error
		if command, err = protocol.ParseCommandType(input.Command); err != nil {
			return err
		}
	}
	status, err := Send(ctx, s.hub, input.Server, input.Tool, command, input.Payload, &output.Payload)
	if status != nil {
		output.Status = *status
	}
	return err
}

// Send looks up server (DefaultServer when empty) in hub and sends payload
// to tool, decoding the response payload into out.
func Send(ctx context.Context, hub *client.Hub, server, tool string, command protocol.CommandType, payload, out interface{}) (*protocol.ResponseStatus, error) {
	if hub == nil {
		return nil, fmt.Errorf("no MCP servers configured")
	}
	if server == "" {
		server = DefaultServer
	}
	c, err := hub.Get(server)
	if err != nil {
		return nil, err
	}
	status, err := c.SendRequest(ctx, tool, command, payload, out)
	if err != nil {
		return nil, err
	}
	if err = status.Err(); err != nil {
		return status, fmt.Errorf("%s/%s: %w", server, tool, err)
	}
	return status, nil
}
