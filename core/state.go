package core

// RunState tracks the lifecycle of a workflow run.
type RunState int

const (
	// RunPending is the initial state before the engine starts scheduling.
	RunPending RunState = iota
	// RunRunning indicates steps are being scheduled or are in flight.
	RunRunning
	// RunCompleted is the terminal success state.
	RunCompleted
	// RunFailed is the terminal state after a surfaced step failure.
	RunFailed
	// RunCancelled is the terminal state after an external cancellation
	// signal propagated to all in-flight steps.
	RunCancelled
)

// String returns the state name.
func (s RunState) String() string {
	switch s {
	case RunPending:
		return "pending"
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	case RunCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is one of the three terminal states.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}
