package llm

import (
	"encoding/json"
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a chat message for the LLM.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool call from the model.
type ToolCall struct {
	ID       string       `json:"id,omitempty"` // Provider-assigned ID, echoed back on the tool result
	Function FunctionCall `json:"function"`
}

// FunctionCall names the invoked tool and carries its decoded arguments.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Request is a provider-neutral chat request.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []map[string]any // OpenAI-style function definitions
	Temperature float64

	// JSONMode asks the provider to constrain output to a single JSON
	// object. Providers without native support ignore it; callers must
	// still validate the output.
	JSONMode bool
}

// ChatResponse is the unified response from any LLM provider.
// All fields use proper Go types; wire format conversion happens
// at provider boundaries (openai.go, ollama.go, anthropic.go).
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int

	// Duration is the wall-clock time of the request.
	Duration time.Duration
}

// decodeArguments parses a JSON-encoded argument string. Unparseable
// input is preserved under "_raw" so the tool layer can report it.
func decodeArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{"_raw": raw}
	}
	return args
}

// encodeArguments is the inverse of decodeArguments for providers that
// expect a JSON string on the wire.
func encodeArguments(args map[string]any) string {
	if raw, ok := args["_raw"].(string); ok && len(args) == 1 {
		return raw
	}
	if args == nil {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}
