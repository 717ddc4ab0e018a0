package models

import "time"

// NodeResult is what an executor hands back to the engine. Failures are
// carried in Error and never thrown past the registry boundary.
type NodeResult struct {
	Success  bool
	Output   map[string]any
	Error    string
	Duration time.Duration

	// Branch names the outgoing edge label this node's outcome selects,
	// e.g. "true"/"false" for a condition node.
	Branch string

	// Vars carries run-variable mutations (set_variable) for the engine to
	// merge and persist.
	Vars map[string]any

	// Suspend pauses the run without occupying a worker. ResumeAt tells the
	// engine when to pick the run back up.
	Suspend  bool
	ResumeAt time.Time

	// Skipped finalizes the node as skipped instead of success.
	Skipped bool

	// Retryable marks a failure as transient. The engine re-runs the node
	// with backoff while the node's retry budget lasts.
	Retryable bool
}

func Succeed(output map[string]any) *NodeResult {
	return &NodeResult{Success: true, Output: output}
}

func Fail(err error) *NodeResult {
	return &NodeResult{Success: false, Error: err.Error()}
}
