package process

import "github.com/avrabe/raco/mcp/protocol"

// Command types.
const (
	TypeStart = "start"
	TypeStop  = "stop"
	TypeList  = "list"
	TypeInfo  = "info"
	TypeExec  = "exec"
)

// Process states reported in ProcessInfo.Status.
const (
	StatusRunning = "running"
	StatusExited  = "exited"
	StatusKilled  = "killed"
)

// Command is a process command tagged by Type.
type Command struct {
	Type      string            `json:"type"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Cwd       string            `json:"cwd,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	PID       uint32            `json:"pid,omitempty"`
	Force     bool              `json:"force,omitempty"`
	TimeoutMs int               `json:"timeout_ms,omitempty"`
}

// Result answers a Command; Type echoes the command type.
type Result struct {
	Type      string                 `json:"type"`
	Process   *protocol.ProcessInfo  `json:"process,omitempty"`
	Processes []protocol.ProcessInfo `json:"processes,omitempty"`
	Success   bool                   `json:"success,omitempty"`
	PID       uint32                 `json:"pid,omitempty"`
	Stdout    string                 `json:"stdout,omitempty"`
	ExitCode  int                    `json:"exit_code"`
}

func Start(command string, args ...string) Command {
	return Command{Type: TypeStart, Command: command, Args: args}
}

func Stop(pid uint32, force bool) Command {
	return Command{Type: TypeStop, PID: pid, Force: force}
}

func List() Command {
	return Command{Type: TypeList}
}

func Info(pid uint32) Command {
	return Command{Type: TypeInfo, PID: pid}
}

// Exec runs command in a shell and waits for it.
func Exec(command string) Command {
	return Command{Type: TypeExec, Command: command}
}
