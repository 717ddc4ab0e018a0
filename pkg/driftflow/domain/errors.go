package domain

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// DefinitionError reports that a definition failed to parse or validate and
// therefore never runs. Problems holds every issue found, not just the first.
type DefinitionError struct {
	Name     string
	Problems *multierror.Error
}

func (e *DefinitionError) Error() string {
	if e.Problems == nil || len(e.Problems.Errors) == 0 {
		return fmt.Sprintf("definition %s is invalid", e.Name)
	}
	return fmt.Sprintf("definition %s is invalid: %d problem(s): %s", e.Name, len(e.Problems.Errors), e.Problems.Errors[0])
}

func (e *DefinitionError) Unwrap() error {
	if e.Problems == nil {
		return nil
	}
	return e.Problems.ErrorOrNil()
}

// Errors returns the individual validation problems.
func (e *DefinitionError) Errors() []error {
	if e.Problems == nil {
		return nil
	}
	return e.Problems.Errors
}

// CycleError means the edge set is not acyclic. NodeID names a node that can
// reach itself.
type CycleError struct {
	NodeID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("workflow graph contains a cycle through node %q", e.NodeID)
}

// UnknownNodeTypeError is raised when a node carries a type tag with no
// registered executor. It is a node failure, not a panic.
type UnknownNodeTypeError struct {
	NodeID   string
	NodeType string
}

func (e *UnknownNodeTypeError) Error() string {
	return fmt.Sprintf("node %s: no executor registered for type %q", e.NodeID, e.NodeType)
}

// NodeValidationError names the node, the offending field and the reason its
// configuration was rejected.
type NodeValidationError struct {
	NodeID string
	Field  string
	Reason string
}

func (e *NodeValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("node %s: %s", e.NodeID, e.Reason)
	}
	return fmt.Sprintf("node %s: field %q: %s", e.NodeID, e.Field, e.Reason)
}

// ExecutionError wraps a failure from the underlying operation a node
// performed. The operation's error text is preserved verbatim.
type ExecutionError struct {
	NodeID string
	Op     string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
	}
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// TimeoutError reports an approval gate whose deadline passed under the fail
// policy. Error returns a fixed message; the fields carry the context.
type TimeoutError struct {
	ExecutionID string
	NodeID      string
	Deadline    time.Time
}

func (e *TimeoutError) Error() string {
	return "approval timed out"
}
