// Package workflow composes registered agents into multi-agent topologies:
// chains, parallel fan-out, routing, orchestration, and evaluator-optimizer
// refinement loops.
//
// A workflow is data (a Definition), validated before any agent is invoked
// and executed by the Engine against one ExecutionContext per run. Runs move
// through pending -> running -> {completed | failed | cancelled} and external
// cancellation propagates to every in-flight step.
package workflow
