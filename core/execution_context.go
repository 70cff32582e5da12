package core

import "sync"

// ExecutionContext is the mutable key/value mapping scoped to one workflow
// run. Step outputs are written at most once per key; a second write to the
// same key is a configuration error surfaced as OUTPUT_KEY_COLLISION. It is
// safe for concurrent use by parallel fan-out branches and is discarded when
// the run completes.
type ExecutionContext struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewExecutionContext creates an execution context seeded with the provided
// initial values (may be nil). Initial values count as written keys.
func NewExecutionContext(initial map[string]string) *ExecutionContext {
	values := make(map[string]string, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &ExecutionContext{values: values}
}

// Set writes a value under key. The write-once invariant makes parallel
// branch outputs deterministic regardless of completion order.
func (ec *ExecutionContext) Set(key, value string) error {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if _, exists := ec.values[key]; exists {
		return Errorf(ErrOutputKeyCollision, "output key %q already written", key)
	}
	ec.values[key] = value
	return nil
}

// Get returns the value for key and whether it was present.
func (ec *ExecutionContext) Get(key string) (string, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	v, ok := ec.values[key]
	return v, ok
}

// Keys returns the set of written keys.
func (ec *ExecutionContext) Keys() []string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	keys := make([]string, 0, len(ec.values))
	for k := range ec.values {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns a copy of the current mapping.
func (ec *ExecutionContext) Snapshot() map[string]string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	out := make(map[string]string, len(ec.values))
	for k, v := range ec.values {
		out[k] = v
	}
	return out
}
