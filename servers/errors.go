// Package servers holds the MCP servers shipped with raco and their shared
// errors. Each server lives in its own sub package and answers
// protocol.Request envelopes through HandleRequest.
package servers

import "errors"

var (
	// ErrServerNotFound is returned for unknown server ids.
	ErrServerNotFound = errors.New("server not found")
	// ErrNotSupported is returned for commands a server does not implement.
	ErrNotSupported = errors.New("operation not supported")
	// ErrMCP wraps failures reported by an MCP peer.
	ErrMCP = errors.New("mcp error")
)

// Server types known to the registry and the CLI.
const (
	TypeFilesystem = "filesystem"
	TypeProcess    = "process"
	TypeGit        = "git"
)

// Types lists the built-in server types.
func Types() []string {
	return []string{TypeFilesystem, TypeProcess, TypeGit}
}
