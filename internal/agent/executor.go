package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/nugget/smarty/internal/engine"
	"github.com/nugget/smarty/internal/llm"
	"github.com/nugget/smarty/internal/prompts"
)

// ToolExecutor executes the head of the plan with a tool-calling model.
type ToolExecutor struct {
	engine       *engine.Engine
	tools        engine.ToolSet
	maxToolCalls int
	logger       *slog.Logger
}

// NewToolExecutor returns an executor that offers tools to e. A
// maxToolCalls of zero means engine.DefaultMaxToolCalls.
func NewToolExecutor(e *engine.Engine, tools engine.ToolSet, maxToolCalls int, logger *slog.Logger) *ToolExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolExecutor{
		engine:       e,
		tools:        tools,
		maxToolCalls: maxToolCalls,
		logger:       logger,
	}
}

// Execute runs s.Plan[0] and returns it with the model's final message.
func (x *ToolExecutor) Execute(ctx context.Context, s State) (PastStep, error) {
	if len(s.Plan) == 0 {
		return PastStep{}, ErrEmptyPlan
	}

	attachment := ""
	if s.HasFile {
		attachment = s.Attachment
	}
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: prompts.ExecutorSystem},
		{Role: llm.RoleUser, Content: prompts.ExecuteStep(s.Plan, s.TaskID, attachment)},
	}

	start := time.Now()
	run, err := x.engine.RunTools(ctx, msgs, x.tools, x.maxToolCalls)
	if err != nil {
		return PastStep{}, err
	}

	x.logger.Info("step executed",
		"task_id", s.TaskID,
		"step", s.Plan[0],
		"tool_calls", len(run.Calls),
		"model_calls", run.ModelCalls,
		"budget_exhausted", run.BudgetExhausted,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	if run.Content == "" {
		x.logger.Warn("step produced no output", "task_id", s.TaskID, "step", s.Plan[0])
	}
	return PastStep{Step: s.Plan[0], Result: run.Content}, nil
}
