// Package core defines the shared data model of AgentWeave: role-based
// messages composed of typed content parts, the append-only Conversation each
// agent owns, the per-run ExecutionContext that threads values between
// workflow steps, run lifecycle states and the coded error type used to make
// every failure attributable to a specific agent, step or session.
package core
