package prompts

import (
	"fmt"
	"strings"
)

// StepResult is one executed step and what it produced.
type StepResult struct {
	Step   string
	Result string
}

const replanTemplate = `For the given objective, come up with a simple step by step plan. This plan should involve individual tasks that, if executed correctly, will yield the correct answer. Do not add any superfluous steps. The result of the final step should be the final answer. Make sure that each step has all the information needed; do not skip steps.

Your objective was this:
%s

Your original plan was this:
%s

You have currently done the following steps:
%s

Decide whether you can answer the objective now or need to keep working.

If you have the final answer, respond with:
{"action": {"type": "respond", "response": "<the answer>"}}

If more work is needed, respond with only the steps that still need to be done. Do not repeat steps that were already completed:
{"action": {"type": "plan", "steps": ["next step", "following step"]}}`

// Replan builds the replanning prompt from the objective, the current
// plan and the trail of completed steps.
func Replan(question string, plan []string, past []StepResult) string {
	var sb strings.Builder
	if len(past) == 0 {
		sb.WriteString("(none)")
	}
	for i, p := range past {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Step: %s\nResult: %s", p.Step, p.Result)
	}
	return fmt.Sprintf(replanTemplate, question, NumberedPlan(plan), sb.String())
}
