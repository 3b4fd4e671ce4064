package agent

import (
	"errors"
	"fmt"
)

// ErrEmptyPlan is returned when the executor is asked to run with no
// steps left.
var ErrEmptyPlan = errors.New("plan is empty")

// ErrStateViolation marks an update that breaks a State rule. It is a
// programming error and aborts the task.
var ErrStateViolation = errors.New("state violation")

// MalformedPlanError reports planner output that is not a usable plan.
type MalformedPlanError struct {
	Reason string
	Err    error
}

func (e *MalformedPlanError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed plan: %s: %v", e.Reason, e.Err)
	}
	return "malformed plan: " + e.Reason
}

func (e *MalformedPlanError) Unwrap() error { return e.Err }

// MalformedActError reports replanner output that is neither a usable
// response nor a usable revised plan.
type MalformedActError struct {
	Reason string
	Err    error
}

func (e *MalformedActError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed act: %s: %v", e.Reason, e.Err)
	}
	return "malformed act: " + e.Reason
}

func (e *MalformedActError) Unwrap() error { return e.Err }

// NodeError wraps the failure that aborted a task with the node it
// came from.
type NodeError struct {
	Node Node
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }
