package elicit

import (
	"sync"
	"time"

	"github.com/weftworks/agentweave/core"
)

// State is the lifecycle state of one elicitation request.
type State string

const (
	StatePending   State = "pending"
	StateAnswered  State = "answered"
	StateCancelled State = "cancelled"
	StateTimedOut  State = "timed_out"
)

// Response is the human's submission for a request.
type Response struct {
	Values map[string]any `json:"values"`
}

// outcome is the single resolution of a request.
type outcome struct {
	response *Response
	err      error
}

// Request is one in-flight human-input request. A request transitions from
// pending to exactly one terminal state; later resolution attempts are
// rejected.
type Request struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Schema    Schema    `json:"schema"`
	CreatedAt time.Time `json:"created_at"`

	mu       sync.Mutex
	state    State
	reason   string
	resolved chan outcome
}

// NewRequest creates a pending request for the given session and form schema.
func NewRequest(sessionID string, schema Schema) *Request {
	return NewRequestWithID(core.NewID(), sessionID, schema)
}

// NewRequestWithID creates a pending request under an externally assigned id,
// used when the id must correlate with a wire envelope.
func NewRequestWithID(id, sessionID string, schema Schema) *Request {
	return &Request{
		ID:        id,
		SessionID: sessionID,
		Schema:    schema,
		CreatedAt: time.Now().UTC(),
		state:     StatePending,
		resolved:  make(chan outcome, 1),
	}
}

// State returns the current lifecycle state.
func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Reason returns the cancellation reason, if the request was cancelled.
func (r *Request) Reason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

// resolve moves the request into a terminal state. The first caller wins;
// subsequent calls report false and change nothing.
func (r *Request) resolve(state State, reason string, resp *Response, err error) bool {
	r.mu.Lock()
	if r.state != StatePending {
		r.mu.Unlock()
		return false
	}
	r.state = state
	r.reason = reason
	r.mu.Unlock()

	r.resolved <- outcome{response: resp, err: err}
	return true
}
