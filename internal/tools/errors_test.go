package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrToolUnavailable_Error(t *testing.T) {
	err := &ErrToolUnavailable{ToolName: "web_search"}
	want := `tool "web_search" is not available`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrToolUnavailable_WrappedErrorsAs(t *testing.T) {
	orig := &ErrToolUnavailable{ToolName: "read_pdf"}
	wrapped := fmt.Errorf("tool execution: %w", orig)

	var target *ErrToolUnavailable
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed to match wrapped *ErrToolUnavailable")
	}
	if target.ToolName != "read_pdf" {
		t.Errorf("ToolName = %q, want %q", target.ToolName, "read_pdf")
	}
}

func TestToolInvocationError_Unwrap(t *testing.T) {
	err := &ToolInvocationError{ToolName: "web_fetch", Err: context.DeadlineExceeded}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("errors.Is should see the handler error")
	}
	if got, want := err.Error(), "web_fetch: context deadline exceeded"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestToolInvocationError_NotUnavailable(t *testing.T) {
	var err error = &ToolInvocationError{ToolName: "x", Err: errors.New("boom")}
	var target *ErrToolUnavailable
	if errors.As(err, &target) {
		t.Error("invocation errors must not match *ErrToolUnavailable")
	}
}
