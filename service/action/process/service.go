// Package process provides "process.*" actions delegating to a process MCP
// server.
package process

import (
	"context"
	"reflect"
	"strings"

	"github.com/avrabe/raco/mcp/client"
	"github.com/avrabe/raco/mcp/protocol"
	"github.com/avrabe/raco/model/types"
	"github.com/avrabe/raco/servers"
	pserver "github.com/avrabe/raco/servers/process"
	"github.com/avrabe/raco/service/action/mcp"
)

const name = "process"

type Input struct {
	Server    string            `json:"server,omitempty"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Cwd       string            `json:"cwd,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	PID       uint32            `json:"pid,omitempty"`
	Force     bool              `json:"force,omitempty"`
	TimeoutMs int               `json:"timeoutMs,omitempty"`
}

type Output = pserver.Result

// Service sends process commands through the hub.
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
		{Name: pserver.TypeStart, Description: "Starts a background process.", Input: reflect.TypeOf(&Input{}), Output: reflect.TypeOf(&Output{})},
		{Name: pserver.TypeStop, Description: "Stops a process by pid.", Input: reflect.TypeOf(&Input{}), Output: reflect.TypeOf(&Output{})},
		{Name: pserver.TypeList, Description: "Lists started processes.", Input: reflect.TypeOf(&Input{}), Output: reflect.TypeOf(&Output{})},
		{Name: pserver.TypeInfo, Description: "Describes a process.", Input: reflect.TypeOf(&Input{}), Output: reflect.TypeOf(&Output{})},
		{Name: pserver.TypeExec, Description: "Runs a shell command and waits for it.", Input: reflect.TypeOf(&Input{}), Output: reflect.TypeOf(&Output{})},
	}
}

// Method returns the specified method
func (s *Service) Method(name string) (types.Executable, error) {
	method := strings.ToLower(name)
	if s.Methods().Lookup(method) == nil {
		return nil, types.NewMethodNotFoundError(name)
	}
	return func(ctx context.Context, in, out interface{}) error {
		input, ok := in.(*Input)
		if !ok {
			return types.NewInvalidInputError(in)
		}
		output, ok := out.(*Output)
		if !ok {
			return types.NewInvalidOutputError(out)
		}
		command := pserver.Command{
			Type:      method,
			Command:   input.Command,
			Args:      input.Args,
			Cwd:       input.Cwd,
			Env:       input.Env,
			PID:       input.PID,
			Force:     input.Force,
			TimeoutMs: input.TimeoutMs,
		}
		_, err := mcp.Send(ctx, s.hub, input.Server, servers.TypeProcess, protocol.CommandExecute, command, output)
		return err
	}, nil
}
