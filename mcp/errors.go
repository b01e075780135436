package mcp

import (
	"errors"
	"fmt"
)

var (
	ErrInvocationTimeout = errors.New("tool invocation timed out")
	ErrDiscoveryTimeout  = errors.New("tool discovery timed out")
	ErrWriteFailed       = errors.New("write to tool server failed")
	ErrServerUnavailable = errors.New("tool server not running")
	ErrUnknownTool       = errors.New("unknown tool")
	ErrClientClosed      = errors.New("tool server connection closed")
	ErrRemote            = errors.New("tool server returned an error")
)

// RPCError is an error object returned by a tool server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Is lets callers match any server-side error with errors.Is(err, ErrRemote).
func (e *RPCError) Is(target error) bool {
	return target == ErrRemote
}

// ToolError is returned by every failed RPC. Err is one of the sentinels
// above, an *RPCError, or a wrapped I/O failure.
type ToolError struct {
	Server string
	Tool   string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("tool %s on %s: %v", e.Tool, e.Server, e.Err)
	}
	return fmt.Sprintf("tool server %s: %v", e.Server, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}
