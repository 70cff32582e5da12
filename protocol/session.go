package protocol

// SessionState is the lifecycle state shared by client and server sessions.
// Transitions only move forward; a closed session never reopens.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateNegotiating
	StateReady
	StateClosed
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateNegotiating:
		return "negotiating"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
