package tools

import "fmt"

// ErrToolUnavailable is returned when a tool call targets a tool that
// is not present in the registry. The executor renders it back to the
// model as the call's result so the model can pick another tool.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}

// ToolInvocationError wraps a failure raised inside a tool handler,
// including recovered panics.
type ToolInvocationError struct {
	ToolName string
	Err      error
}

// Error implements the error interface.
func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("%s: %v", e.ToolName, e.Err)
}

// Unwrap returns the handler error.
func (e *ToolInvocationError) Unwrap() error { return e.Err }
