package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nugget/smarty/internal/llm"
	"github.com/nugget/smarty/internal/prompts"
)

// DefaultMaxToolCalls bounds tool invocations in one RunTools call.
const DefaultMaxToolCalls = 16

// ToolSet is the tool surface RunTools needs. tools.Registry satisfies it.
type ToolSet interface {
	// List returns OpenAI-style function definitions.
	List() []map[string]any
	// Execute invokes the named tool. Errors are rendered to the model
	// as the tool's result.
	Execute(ctx context.Context, name string, args map[string]any) (string, error)
}

// ToolCallRecord is one dispatched tool call.
type ToolCallRecord struct {
	Name     string
	Args     map[string]any
	Result   string
	Err      error
	Duration time.Duration
}

// ToolRun is the outcome of a RunTools invocation.
type ToolRun struct {
	// Content is the model's final message.
	Content string
	// Calls lists every dispatched tool call in order.
	Calls []ToolCallRecord
	// ModelCalls counts round trips to the model.
	ModelCalls int
	// BudgetExhausted is set when maxCalls cut the loop short.
	BudgetExhausted bool
}

// RunTools drives the tool-calling loop: the model is offered the tool
// definitions, every requested call is dispatched through tools, and
// results are fed back until the model answers without calling tools.
// At most maxCalls tools run (zero means DefaultMaxToolCalls); when the
// allowance is spent the model gets one final call without tools.
func (e *Engine) RunTools(ctx context.Context, messages []llm.Message, tools ToolSet, maxCalls int) (*ToolRun, error) {
	if maxCalls <= 0 {
		maxCalls = DefaultMaxToolCalls
	}

	msgs := make([]llm.Message, len(messages))
	copy(msgs, messages)
	defs := tools.List()

	run := &ToolRun{}
	nudged := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := e.chat(ctx, msgs, defs, false)
		if err != nil {
			return nil, err
		}
		run.ModelCalls++

		if len(resp.Message.ToolCalls) == 0 {
			content := strings.TrimSpace(resp.Message.Content)
			// Some models go quiet after tool use; give them one nudge.
			if content == "" && len(run.Calls) > 0 && !nudged {
				nudged = true
				e.logger.Debug("empty response after tool calls, nudging")
				msgs = append(msgs,
					llm.Message{Role: llm.RoleAssistant, Content: ""},
					llm.Message{Role: llm.RoleUser, Content: prompts.EmptyResponseNudge},
				)
				continue
			}
			run.Content = content
			return run, nil
		}

		calls := make([]llm.ToolCall, len(resp.Message.ToolCalls))
		copy(calls, resp.Message.ToolCalls)
		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = fmt.Sprintf("call_%d_%d", run.ModelCalls, i)
			}
		}
		msgs = append(msgs, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Message.Content,
			ToolCalls: calls,
		})

		for _, tc := range calls {
			id := tc.ID

			// Every tool call must be answered, even past the budget.
			if len(run.Calls) >= maxCalls {
				run.BudgetExhausted = true
				msgs = append(msgs, llm.Message{
					Role:       llm.RoleTool,
					Content:    "Error: tool call limit reached; call not executed.",
					ToolCallID: id,
				})
				continue
			}

			rec := e.dispatch(ctx, tools, tc)
			run.Calls = append(run.Calls, rec)

			content := rec.Result
			if rec.Err != nil {
				content = "Error: " + rec.Err.Error()
			}
			msgs = append(msgs, llm.Message{Role: llm.RoleTool, Content: content, ToolCallID: id})
		}

		if len(run.Calls) >= maxCalls {
			run.BudgetExhausted = true
			e.logger.Warn("tool call budget exhausted", "max_tool_calls", maxCalls)
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: prompts.ToolBudgetExhausted})
			final, err := e.chat(ctx, msgs, nil, false)
			if err != nil {
				return nil, err
			}
			run.ModelCalls++
			run.Content = strings.TrimSpace(final.Message.Content)
			return run, nil
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, tools ToolSet, tc llm.ToolCall) ToolCallRecord {
	start := time.Now()
	result, err := tools.Execute(ctx, tc.Function.Name, tc.Function.Arguments)
	rec := ToolCallRecord{
		Name:     tc.Function.Name,
		Args:     tc.Function.Arguments,
		Result:   result,
		Err:      err,
		Duration: time.Since(start),
	}
	if err != nil {
		e.logger.Warn("tool call failed",
			"tool", rec.Name,
			"error", err,
			"elapsed", rec.Duration.Round(time.Millisecond),
		)
	} else {
		e.logger.Debug("tool call complete",
			"tool", rec.Name,
			"result_len", len(result),
			"elapsed", rec.Duration.Round(time.Millisecond),
		)
	}
	return rec
}
