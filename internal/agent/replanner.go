package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nugget/smarty/internal/engine"
	"github.com/nugget/smarty/internal/llm"
	"github.com/nugget/smarty/internal/prompts"
)

var actSchema = engine.Schema{
	Name:        "act",
	Description: "either a final response or the steps that remain",
	JSON: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type": map[string]any{
						"type": "string",
						"enum": []string{"respond", "plan"},
					},
					"response": map[string]any{
						"type":        "string",
						"description": "the answer, when type is respond",
					},
					"steps": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "steps still to do, when type is plan",
					},
				},
				"required": []string{"type"},
			},
		},
		"required": []string{"action"},
	},
}

type actEnvelope struct {
	Action *struct {
		Type     string   `json:"type"`
		Response string   `json:"response"`
		Steps    []string `json:"steps"`
	} `json:"action"`
}

// LLMReplanner asks the replanning model whether the past steps answer
// the question.
type LLMReplanner struct {
	engine *engine.Engine
}

// NewReplanner returns a replanner backed by e.
func NewReplanner(e *engine.Engine) *LLMReplanner {
	return &LLMReplanner{engine: e}
}

// Replan returns Respond or Revise. A revised plan never contains a
// step that was already executed; when nothing new remains the output
// is a *MalformedActError.
func (r *LLMReplanner) Replan(ctx context.Context, s State) (Act, error) {
	past := make([]prompts.StepResult, len(s.PastSteps))
	for i, p := range s.PastSteps {
		past[i] = prompts.StepResult{Step: p.Step, Result: p.Result}
	}
	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: prompts.Replan(s.Question, s.Plan, past)},
	}

	var env actEnvelope
	if err := r.engine.Structured(ctx, msgs, actSchema, &env); err != nil {
		var de *engine.DecodeError
		if errors.As(err, &de) {
			return nil, &MalformedActError{Reason: "output does not match the act schema", Err: err}
		}
		return nil, err
	}
	if env.Action == nil {
		return nil, &MalformedActError{Reason: "missing action"}
	}

	switch strings.ToLower(strings.TrimSpace(env.Action.Type)) {
	case "respond", "response":
		text := strings.TrimSpace(env.Action.Response)
		if text == "" {
			return nil, &MalformedActError{Reason: "respond without a response"}
		}
		return Respond{Text: text}, nil
	case "plan":
		rest := remainingSteps(env.Action.Steps, s.PastSteps)
		if len(rest) == 0 {
			return nil, &MalformedActError{Reason: "plan has no steps that were not already executed"}
		}
		return Revise{Steps: rest}, nil
	default:
		return nil, &MalformedActError{Reason: fmt.Sprintf("unknown action type %q", env.Action.Type)}
	}
}
