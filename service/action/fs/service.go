// Package fs provides "fs.*" actions delegating to a filesystem MCP server.
package fs

import (
	"context"
	"reflect"
	"strings"

	"github.com/avrabe/raco/mcp/client"
	"github.com/avrabe/raco/mcp/protocol"
	"github.com/avrabe/raco/model/types"
	"github.com/avrabe/raco/servers"
	"github.com/avrabe/raco/servers/filesystem"
	"github.com/avrabe/raco/service/action/mcp"
)

const name = "fs"

// Input carries the arguments of every fs method; the method name selects
// the command type.
type Input struct {
	Server    string `json:"server,omitempty" description:"hub server name, local by default"`
	Path      string `json:"path,omitempty"`
	Recursive bool   `json:"recursive,omitempty"`
	Encoding  string `json:"encoding,omitempty"`
	Content   string `json:"content,omitempty"`
	Append    bool   `json:"append,omitempty"`
	Patch     string `json:"patch,omitempty"`
}

func (i *Input) command(commandType string) filesystem.Command {
	return filesystem.Command{
		Type:      commandType,
		Path:      i.Path,
		Recursive: i.Recursive,
		Encoding:  i.Encoding,
		Content:   i.Content,
		Append:    i.Append,
		Patch:     i.Patch,
	}
}

type Output = filesystem.Result

// Service sends filesystem commands through the hub.
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

var methods = map[string]string{
	filesystem.TypeList:   "Lists a directory.",
	filesystem.TypeRead:   "Reads a file.",
	filesystem.TypeWrite:  "Writes or appends to a file.",
	filesystem.TypeDelete: "Deletes a file or directory.",
	filesystem.TypeDiff:   "Diffs a file against new content.",
	filesystem.TypePatch:  "Applies a unified diff to a file.",
}

// Methods returns the service methods
func (s *Service) Methods() types.Signatures {
	var ret types.Signatures
	for _, method := range []string{filesystem.TypeList, filesystem.TypeRead, filesystem.TypeWrite, filesystem.TypeDelete, filesystem.TypeDiff, filesystem.TypePatch} {
		ret = append(ret, types.Signature{
			Name:        method,
			Description: methods[method],
			Input:       reflect.TypeOf(&Input{}),
			Output:      reflect.TypeOf(&Output{}),
		})
	}
	return ret
}

// Method returns the specified method
func (s *Service) Method(name string) (types.Executable, error) {
	method := strings.ToLower(name)
	if _, ok := methods[method]; !ok {
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
		_, err := mcp.Send(ctx, s.hub, input.Server, servers.TypeFilesystem, protocol.CommandExecute, input.command(method), output)
		return err
	}, nil
}
