// Package prompts contains all LLM prompt templates used by Smarty.
//
// Prompt text is Go code rather than config files because it is program logic:
// templates use fmt.Sprintf interpolation, benefit from compile-time embedding,
// and can be validated by tests. User-facing configuration lives in config.yaml;
// this package holds the instructions we send to models for each node of the
// plan/execute/replan loop and for the model-backed tools.
//
// Convention: each prompt category gets its own file (planner.go,
// executor.go, replanner.go) with an exported function that accepts the
// dynamic parts and returns the fully interpolated prompt string.
package prompts
