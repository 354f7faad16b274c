package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// CommandType classifies a request.
type CommandType string

const (
	CommandExecute  CommandType = "execute"
	CommandQuery    CommandType = "query"
	CommandMonitor  CommandType = "monitor"
	CommandRegister CommandType = "register"
)

func (c CommandType) String() string {
	return string(c)
}

// ParseCommandType is case-sensitive.
func ParseCommandType(s string) (CommandType, error) {
	switch c := CommandType(s); c {
	case CommandExecute, CommandQuery, CommandMonitor, CommandRegister:
		return c, nil
	}
	return "", fmt.Errorf("unknown command type: %q", s)
}

// Request is the envelope sent to a server.
type Request[T any] struct {
	Command   CommandType `json:"command"`
	Payload   T           `json:"payload"`
	RequestID string      `json:"request_id,omitempty"`
}

// NewRequest creates a request with a random id.
func NewRequest[T any](command CommandType, payload T) *Request[T] {
	return &Request[T]{Command: command, Payload: payload, RequestID: uuid.NewString()}
}

// ResponseStatus reports the outcome of a request; code 0 means success.
type ResponseStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func Success() ResponseStatus {
	return ResponseStatus{Code: 0, Message: "Success"}
}

func Error(code int, message string) ResponseStatus {
	return ResponseStatus{Code: code, Message: message}
}

func (s ResponseStatus) IsSuccess() bool {
	return s.Code == 0
}

// Err returns nil on success, otherwise an error carrying the status message.
func (s ResponseStatus) Err() error {
	if s.IsSuccess() {
		return nil
	}
	return &StatusError{Status: s}
}

// StatusError is returned for a non-success response status.
type StatusError struct {
	Status ResponseStatus
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed (code %d): %s", e.Status.Code, e.Status.Message)
}

// Response is the envelope returned by a server.
type Response[T any] struct {
	Command   CommandType    `json:"command"`
	Payload   T              `json:"payload"`
	Status    ResponseStatus `json:"status"`
	RequestID string         `json:"request_id,omitempty"`
}

// NewResponse answers req successfully.
func NewResponse[T, R any](req *Request[R], payload T) *Response[T] {
	return &Response[T]{Command: req.Command, Payload: payload, Status: Success(), RequestID: req.RequestID}
}

// NewErrorResponse answers req with an error status.
func NewErrorResponse[T, R any](req *Request[R], payload T, code int, message string) *Response[T] {
	return &Response[T]{Command: req.Command, Payload: payload, Status: Error(code, message), RequestID: req.RequestID}
}

// FileInfo describes a file or directory.
type FileInfo struct {
	Name        string            `json:"name"`
	Path        string            `json:"path"`
	Size        uint64            `json:"size"`
	IsDirectory bool              `json:"is_directory"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ProcessInfo describes a process started by the process server.
type ProcessInfo struct {
	PID      uint32            `json:"pid"`
	Name     string            `json:"name"`
	Command  string            `json:"command"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
