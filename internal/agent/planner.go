package agent

import (
	"context"
	"errors"

	"github.com/nugget/smarty/internal/engine"
	"github.com/nugget/smarty/internal/llm"
	"github.com/nugget/smarty/internal/prompts"
)

var planSchema = engine.Schema{
	Name:        "plan",
	Description: "an ordered plan and whether the task has an attached file",
	JSON: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"steps": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"minItems":    1,
				"description": "different steps to follow, in sorted order",
			},
			"has_file": map[string]any{
				"type":        "boolean",
				"description": "whether the objective refers to an attached file that must be downloaded",
			},
		},
		"required": []string{"steps", "has_file"},
	},
}

// LLMPlanner asks the planning model for a plan.
type LLMPlanner struct {
	engine *engine.Engine
}

// NewPlanner returns a planner backed by e.
func NewPlanner(e *engine.Engine) *LLMPlanner {
	return &LLMPlanner{engine: e}
}

// planWire keeps absent fields distinguishable from zero values.
type planWire struct {
	Steps   *[]string `json:"steps"`
	HasFile *bool     `json:"has_file"`
}

// Plan returns the initial plan for question. Output that does not
// decode, omits a required field, or decodes to no steps is a
// *MalformedPlanError.
func (p *LLMPlanner) Plan(ctx context.Context, question string) (PlanResult, error) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: prompts.PlannerSystem()},
		{Role: llm.RoleUser, Content: prompts.PlannerUser(question)},
	}

	var out planWire
	if err := p.engine.Structured(ctx, msgs, planSchema, &out); err != nil {
		var de *engine.DecodeError
		if errors.As(err, &de) {
			return PlanResult{}, &MalformedPlanError{Reason: "output does not match the plan schema", Err: err}
		}
		return PlanResult{}, err
	}

	switch {
	case out.Steps == nil:
		return PlanResult{}, &MalformedPlanError{Reason: "missing steps"}
	case out.HasFile == nil:
		return PlanResult{}, &MalformedPlanError{Reason: "missing has_file"}
	}

	steps := remainingSteps(*out.Steps, nil)
	if len(steps) == 0 {
		return PlanResult{}, &MalformedPlanError{Reason: "no steps"}
	}
	return PlanResult{Steps: steps, HasFile: *out.HasFile}, nil
}
