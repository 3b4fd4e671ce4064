package prompts

import (
	"fmt"
	"strings"
)

// ExecutorSystem is the system prompt for the tool-using executor.
const ExecutorSystem = `You are a helpful assistant executing one step of a larger plan. Use the available tools whenever they help; chain tool calls if necessary. When you have the result of the step, or have hit a blocking issue, reply with that result as your final message. Be specific: include exact numbers, names and values.`

// NumberedPlan renders plan steps as "1. step" lines.
func NumberedPlan(plan []string) string {
	var sb strings.Builder
	for i, step := range plan {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, step)
	}
	return sb.String()
}

// ExecuteStep builds the task prompt for the head of the plan. The
// attachment line is included only when attachment is non-empty.
func ExecuteStep(plan []string, taskID, attachment string) string {
	head := ""
	if len(plan) > 0 {
		head = plan[0]
	}
	prompt := fmt.Sprintf("For the following plan:\n%s\n\nYou are tasked with executing step 1, %s. (task_id: %s)",
		NumberedPlan(plan), head, taskID)
	if attachment != "" {
		prompt += fmt.Sprintf("\n\nFile available at: %s", attachment)
	}
	return prompt
}
