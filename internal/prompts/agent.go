package prompts

// EmptyResponseNudge is the prompt injected when the model returns no
// content after executing tool calls. It gives the model one more
// chance to produce a result for the step.
const EmptyResponseNudge = "You executed tool calls but did not report a result. State the result of the step now."

// ToolBudgetExhausted is appended when the executor has used its
// tool-call allowance and must answer from what it already has.
const ToolBudgetExhausted = "You have reached the tool call limit for this step. Do not call any more tools. Report the result of the step, or the blocking issue, using the information gathered so far."
