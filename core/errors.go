package core

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes failures across the framework.
type ErrorCode string

const (
	// ErrTransportClosed reports a closed duplex channel (process exit,
	// connection drop, idle timeout). Callers must re-open; there is no
	// automatic reconnect.
	ErrTransportClosed ErrorCode = "TRANSPORT_CLOSED"
	// ErrCapabilityMismatch reports a failed session negotiation because a
	// required capability is absent on the peer.
	ErrCapabilityMismatch ErrorCode = "CAPABILITY_MISMATCH"
	// ErrSessionClosed reports an operation attempted on, or outstanding
	// against, a session that has transitioned to Closed.
	ErrSessionClosed ErrorCode = "SESSION_CLOSED"
	// ErrToolLoopExceeded reports that a model kept requesting tool calls
	// beyond the configured maximum depth.
	ErrToolLoopExceeded ErrorCode = "TOOL_LOOP_EXCEEDED"
	// ErrRouteNotFound reports a classifier label absent from the route table
	// with no default route configured.
	ErrRouteNotFound ErrorCode = "ROUTE_NOT_FOUND"
	// ErrOrchestrationExhausted reports an orchestrator that reached its
	// iteration bound without the planner signalling completion.
	ErrOrchestrationExhausted ErrorCode = "ORCHESTRATION_EXHAUSTED"
	// ErrOutputKeyCollision reports a second write to the same execution
	// context key within one run.
	ErrOutputKeyCollision ErrorCode = "OUTPUT_KEY_COLLISION"
	// ErrAgentBusy reports a concurrent Send against an agent whose
	// conversation is single-writer.
	ErrAgentBusy ErrorCode = "AGENT_BUSY"
	// ErrElicitationCancelled reports a human-input request resolved by
	// cancellation (explicit, auto-cancel policy, or the cancel-all switch).
	ErrElicitationCancelled ErrorCode = "ELICITATION_CANCELLED"
	// ErrElicitationTimedOut reports a human-input request that exceeded its
	// configured wait period.
	ErrElicitationTimedOut ErrorCode = "ELICITATION_TIMED_OUT"
	// ErrTimeout reports a per-operation deadline expiry, distinct from
	// external cancellation.
	ErrTimeout ErrorCode = "TIMEOUT"
	// ErrCancelled reports termination by an external cancellation signal.
	ErrCancelled ErrorCode = "CANCELLED"
	// ErrInvalidDefinition reports a workflow definition that failed pre-run
	// validation.
	ErrInvalidDefinition ErrorCode = "INVALID_DEFINITION"
)

// Error is the structured error type used across the framework. It carries
// the originating agent/step/session identity so failures are attributable to
// a specific point in the topology.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Agent   string    `json:"agent,omitempty"`
	Step    string    `json:"step,omitempty"`
	Session string    `json:"session,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	origin := ""
	if e.Step != "" {
		origin += " step=" + e.Step
	}
	if e.Agent != "" {
		origin += " agent=" + e.Agent
	}
	if e.Session != "" {
		origin += " session=" + e.Session
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s]%s %s: %v", e.Code, origin, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s]%s %s", e.Code, origin, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports code equality so errors.Is works against template errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates an Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches the underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithAgent records the originating agent name.
func (e *Error) WithAgent(agent string) *Error {
	e.Agent = agent
	return e
}

// WithStep records the originating workflow step.
func (e *Error) WithStep(step string) *Error {
	e.Step = step
	return e
}

// WithSession records the originating session id.
func (e *Error) WithSession(session string) *Error {
	e.Session = session
	return e
}

// CodeOf extracts the error code from err, unwrapping as needed. Returns the
// empty code for non-framework errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }
