// Package protocol defines the wire types shared by the planner, the
// dispatcher, and every capability server: the Action/Plan pair and the
// uniform result envelope.
package protocol

import (
	"time"
)

// Error kinds recognized at every boundary. The envelope carries one of
// these in error.type so callers never need to distinguish transport
// faults from application faults structurally.
const (
	// ErrSecurity means the command was blocked by policy and never executed
	ErrSecurity = "SecurityError"
	// ErrTimeout means a deadline elapsed and the operation was forcibly stopped
	ErrTimeout = "Timeout"
	// ErrConnection means the endpoint was unreachable at the transport layer
	ErrConnection = "ConnectionError"
	// ErrParse means a collaborator produced output that is not valid JSON
	ErrParse = "ParseError"
	// ErrSchema means structurally valid data violated the tool schema
	ErrSchema = "SchemaError"
	// ErrConfig means a local configuration problem (e.g. unknown tool endpoint)
	ErrConfig = "ConfigError"
)

// Action describes one tool invocation: which tool, which of its
// actions, and the action's arguments.
type Action struct {
	Tool string         `json:"tool"`
	Name string         `json:"action"`
	Args map[string]any `json:"args"`
}

// Plan is an ordered sequence of actions produced from a single
// natural-language instruction. Order is significant end to end:
// later steps may depend on side effects of earlier ones.
type Plan struct {
	ID          string    `json:"id"`
	Instruction string    `json:"instruction"`
	Actions     []Action  `json:"actions"`
	CreatedAt   time.Time `json:"created_at"`
}

// Len returns the number of actions in the plan.
func (p *Plan) Len() int {
	return len(p.Actions)
}

// ErrorInfo is the typed error half of the envelope.
type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Envelope is the uniform response wrapper returned by every tool
// endpoint and by the sandbox. Exactly one of Result/Error is
// meaningful, discriminated by OK.
type Envelope struct {
	OK     bool           `json:"ok"`
	Result map[string]any `json:"result"`
	Error  *ErrorInfo     `json:"error"`
}

// Success builds a successful envelope carrying a result payload.
func Success(result map[string]any) Envelope {
	return Envelope{OK: true, Result: result}
}

// Failure builds a failed envelope with a typed error.
func Failure(kind, message string) Envelope {
	return Envelope{OK: false, Error: &ErrorInfo{Type: kind, Message: message}}
}

// ErrorType returns the error kind of a failed envelope, or "" for a
// successful one.
func (e Envelope) ErrorType() string {
	if e.OK || e.Error == nil {
		return ""
	}
	return e.Error.Type
}

// ToolRequest is the payload POSTed to a capability server.
type ToolRequest struct {
	Action    string         `json:"action"`
	Args      map[string]any `json:"args"`
	RequestID string         `json:"request_id"`
}

// ExecArgs are the arguments of the system tool's exec action.
type ExecArgs struct {
	Cmd        string `json:"cmd"`
	TimeoutSec int    `json:"timeout_sec,omitempty"`
}

// ExecResult is the result payload of a completed exec action. A
// nonzero exit code is a normal result, not a transport error.
type ExecResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Map converts the exec result into an envelope result payload.
func (r ExecResult) Map() map[string]any {
	return map[string]any{
		"exit_code": r.ExitCode,
		"stdout":    r.Stdout,
		"stderr":    r.Stderr,
	}
}
