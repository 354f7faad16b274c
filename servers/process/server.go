// Package process implements the process MCP server. Long running
// processes are started in the background and tracked by pid; exec runs a
// shell command synchronously through gosh.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/avrabe/raco/internal/clock"
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/mcp/protocol"
	"github.com/avrabe/raco/servers"
	"github.com/google/uuid"
	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
	"go.uber.org/zap"
)

const defaultExecTimeout = time.Minute

// ErrUnknownProcess is returned for pids not started by the server.
var ErrUnknownProcess = errors.New("unknown process")

type handle struct {
	mu      sync.Mutex
	info    protocol.ProcessInfo
	cmd     *exec.Cmd
	output  *tailBuffer
	stopped bool
	done    chan struct{}
}

func (h *handle) snapshot() protocol.ProcessInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	ret := h.info
	ret.Metadata = make(map[string]string, len(h.info.Metadata)+1)
	for k, v := range h.info.Metadata {
		ret.Metadata[k] = v
	}
	return ret
}

// Server handles process commands.
type Server struct {
	id      string
	logger  *logging.Logger
	mu      sync.RWMutex
	handles map[uint32]*handle
}

// Option configures a Server.
type Option func(s *Server)

func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(opts ...Option) *Server {
	ret := &Server{id: uuid.NewString(), handles: map[uint32]*handle{}}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.logger == nil {
		ret.logger = logging.NewNop()
	}
	ret.logger = ret.logger.Named(servers.TypeProcess)
	return ret
}

func (s *Server) ID() string {
	return s.id
}

// HandleRequest runs the command; failures are reported in the response
// status with code 1.
func (s *Server) HandleRequest(ctx context.Context, request *protocol.Request[Command]) *protocol.Response[Result] {
	s.logger.Debug(ctx, "handling process request",
		zap.String("type", request.Payload.Type),
		zap.String("request_id", request.RequestID))
	result, err := s.handle(ctx, &request.Payload)
	if err != nil {
		s.logger.Error(ctx, "process request failed", zap.String("type", request.Payload.Type), zap.Error(err))
		return protocol.NewErrorResponse(request, Result{Type: request.Payload.Type}, 1, err.Error())
	}
	result.Type = request.Payload.Type
	return protocol.NewResponse(request, *result)
}

func (s *Server) handle(ctx context.Context, cmd *Command) (*Result, error) {
	switch cmd.Type {
	case TypeStart:
		return s.start(ctx, cmd)
	case TypeStop:
		return s.stop(ctx, cmd)
	case TypeList:
		return &Result{Processes: s.list()}, nil
	case TypeInfo:
		return s.info(cmd)
	case TypeExec:
		return s.exec(ctx, cmd)
	}
	return nil, fmt.Errorf("%w: process command %q", servers.ErrNotSupported, cmd.Type)
}

func (s *Server) start(ctx context.Context, cmd *Command) (*Result, error) {
	if cmd.Command == "" {
		return nil, errors.New("command is required")
	}
	c := exec.Command(cmd.Command, cmd.Args...)
	c.Dir = cmd.Cwd
	c.Env = environ(cmd.Env)
	output := &tailBuffer{}
	c.Stdout = output
	c.Stderr = output
	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", cmd.Command, err)
	}
	pid := uint32(c.Process.Pid)
	h := &handle{
		cmd:    c,
		output: output,
		done:   make(chan struct{}),
		info: protocol.ProcessInfo{
			PID:     pid,
			Name:    baseName(cmd.Command),
			Command: strings.TrimSpace(cmd.Command + " " + strings.Join(cmd.Args, " ")),
			Status:  StatusRunning,
			Metadata: map[string]string{
				"started_at": clock.Now().Format(time.RFC3339),
			},
		},
	}
	if cmd.Cwd != "" {
		h.info.Metadata["cwd"] = cmd.Cwd
	}
	s.mu.Lock()
	s.handles[pid] = h
	s.mu.Unlock()
	go s.reap(h)
	s.logger.Info(ctx, "process started", zap.Uint32("pid", pid), zap.String("command", h.info.Command))
	info := h.snapshot()
	return &Result{Process: &info}, nil
}

// reap waits for the process and records its exit.
func (s *Server) reap(h *handle) {
	err := h.cmd.Wait()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	h.mu.Lock()
	if h.stopped {
		h.info.Status = StatusKilled
	} else {
		h.info.Status = StatusExited
	}
	h.info.Metadata["exit_code"] = strconv.Itoa(exitCode)
	h.info.Metadata["exited_at"] = clock.Now().Format(time.RFC3339)
	h.info.Metadata["stdout"] = h.output.String()
	h.mu.Unlock()
	close(h.done)
}

func (s *Server) lookup(pid uint32) (*handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[pid]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProcess, pid)
	}
	return h, nil
}

func (s *Server) stop(ctx context.Context, cmd *Command) (*Result, error) {
	h, err := s.lookup(cmd.PID)
	if err != nil {
		return nil, err
	}
	select {
	case <-h.done:
		return &Result{Success: false, PID: cmd.PID}, nil
	default:
	}
	signal := os.Signal(syscall.SIGTERM)
	if cmd.Force {
		signal = os.Kill
	}
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	if err = h.cmd.Process.Signal(signal); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return nil, fmt.Errorf("failed to stop %d: %w", cmd.PID, err)
	}
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		s.logger.Warn(ctx, "process did not exit after signal", zap.Uint32("pid", cmd.PID))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.logger.Info(ctx, "process stopped", zap.Uint32("pid", cmd.PID), zap.Bool("force", cmd.Force))
	return &Result{Success: true, PID: cmd.PID}, nil
}

func (s *Server) list() []protocol.ProcessInfo {
	s.mu.RLock()
	ret := make([]protocol.ProcessInfo, 0, len(s.handles))
	for _, h := range s.handles {
		ret = append(ret, h.snapshot())
	}
	s.mu.RUnlock()
	sort.Slice(ret, func(i, j int) bool { return ret[i].PID < ret[j].PID })
	return ret
}

func (s *Server) info(cmd *Command) (*Result, error) {
	h, err := s.lookup(cmd.PID)
	if err != nil {
		return &Result{}, nil
	}
	info := h.snapshot()
	return &Result{Process: &info}, nil
}

// exec runs a shell command in a fresh local gosh session.
func (s *Server) exec(ctx context.Context, cmd *Command) (*Result, error) {
	if cmd.Command == "" {
		return nil, errors.New("command is required")
	}
	var options []runner.Option
	if len(cmd.Env) > 0 {
		options = append(options, runner.WithEnvironment(cmd.Env))
	}
	session, err := gosh.New(ctx, local.New(options...))
	if err != nil {
		return nil, fmt.Errorf("failed to open shell: %w", err)
	}
	defer session.Close()
	if cmd.Cwd != "" {
		if _, code, err := session.Run(ctx, "cd "+shellQuote(cmd.Cwd)); err != nil || code != 0 {
			return nil, fmt.Errorf("failed to change directory to %s", cmd.Cwd)
		}
	}
	timeout := defaultExecTimeout
	if cmd.TimeoutMs > 0 {
		timeout = time.Duration(cmd.TimeoutMs) * time.Millisecond
	}
	started := time.Now()
	stdout, code, err := session.Run(ctx, cmd.Command, runner.WithTimeout(int(timeout.Milliseconds())))
	if elapsed := time.Since(started); err != nil && elapsed >= timeout {
		return nil, fmt.Errorf("command %q timed out after %s", cmd.Command, elapsed.Round(time.Millisecond))
	}
	if err != nil && code == 0 {
		return nil, fmt.Errorf("failed to run %q: %w", cmd.Command, err)
	}
	s.logger.Debug(ctx, "command executed", zap.String("command", cmd.Command), zap.Int("exit_code", code))
	return &Result{Stdout: stdout, ExitCode: code}, nil
}

// shellQuote wraps value in single quotes so the shell takes it literally.
func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// Close kills every running process.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	for _, info := range s.list() {
		if info.Status != StatusRunning {
			continue
		}
		if _, err := s.stop(ctx, &Command{PID: info.PID, Force: true}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func environ(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	ret := os.Environ()
	for k, v := range env {
		ret = append(ret, k+"="+v)
	}
	return ret
}

func baseName(command string) string {
	if i := strings.LastIndexAny(command, `/\`); i >= 0 {
		return command[i+1:]
	}
	return command
}
