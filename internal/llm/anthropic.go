package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/smarty/internal/httpkit"
)

const (
	anthropicAPIVersion       = "2023-06-01"
	anthropicDefaultBaseURL   = "https://api.anthropic.com"
	anthropicDefaultMaxTokens = 4096

	jsonModeInstruction = "Respond with a single JSON object and nothing else."
)

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	endpoint   string
	apiKey     string
	maxTokens  int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAnthropicClient creates a Messages API client. An empty baseURL
// means the public API.
func NewAnthropicClient(baseURL, apiKey string, logger *slog.Logger) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &AnthropicClient{
		endpoint:   strings.TrimRight(baseURL, "/") + "/v1/messages",
		apiKey:     apiKey,
		maxTokens:  anthropicDefaultMaxTokens,
		logger:     logger.With("provider", "anthropic"),
		httpClient: httpkit.NewClient(httpkit.WithTimeout(0), httpkit.WithTransport(t)),
	}
}

type anthropicRequest struct {
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	Messages    []anthropicTurn `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	Tools       []anthropicTool `json:"tools,omitempty"`
}

// anthropicTurn is one message. Content is always sent as blocks so
// turns of the same role can be merged.
type anthropicTurn struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

// anthropicBlock covers the text, tool_use and tool_result block types.
type anthropicBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema"`
}

type anthropicResponse struct {
	Role       string           `json:"role"`
	Model      string           `json:"model"`
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Chat sends req to the Messages API. The API has no JSON output mode,
// so JSONMode appends an instruction to the system prompt instead.
func (c *AnthropicClient) Chat(ctx context.Context, req Request) (*ChatResponse, error) {
	turns, system := toAnthropicTurns(req.Messages)
	if req.JSONMode {
		system = strings.TrimSpace(system + "\n\n" + jsonModeInstruction)
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       req.Model,
		System:      system,
		Messages:    turns,
		MaxTokens:   c.maxTokens,
		Temperature: req.Temperature,
		Tools:       toAnthropicTools(req.Tools),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Debug("sending request", "model", req.Model, "turns", len(turns), "tools", len(req.Tools))
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(body))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", msg)
		return nil, fmt.Errorf("anthropic API error %d: %s", resp.StatusCode, msg)
	}

	var wire anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if wire.StopReason == "max_tokens" {
		c.logger.Warn("response cut off at max_tokens", "model", wire.Model, "max_tokens", c.maxTokens)
	}

	out := fromAnthropic(&wire)
	out.Duration = time.Since(start)
	c.logger.Debug("response received",
		"model", out.Model,
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"tool_calls", len(out.Message.ToolCalls),
		"elapsed", out.Duration,
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", out.Message.Content)
	return out, nil
}

// toAnthropicTurns lifts system messages into a separate prompt and
// maps the rest onto alternating user/assistant turns. Tool results
// travel as user turns, so adjacent results share one turn.
func toAnthropicTurns(messages []Message) ([]anthropicTurn, string) {
	var system []string
	var turns []anthropicTurn

	push := func(role string, blocks ...anthropicBlock) {
		if len(blocks) == 0 {
			return
		}
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Content = append(turns[n-1].Content, blocks...)
			return
		}
		turns = append(turns, anthropicTurn{Role: role, Content: blocks})
	}

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleUser:
			push(RoleUser, textBlocks(m.Content)...)
		case RoleTool:
			push(RoleUser, anthropicBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content})
		case RoleAssistant:
			blocks := textBlocks(m.Content)
			for i, tc := range m.ToolCalls {
				blocks = append(blocks, toolUseBlock(tc, i))
			}
			push(RoleAssistant, blocks...)
		}
	}
	return turns, strings.Join(system, "\n\n")
}

// textBlocks wraps non-empty text; the API rejects empty text blocks.
func textBlocks(s string) []anthropicBlock {
	if s == "" {
		return nil
	}
	return []anthropicBlock{{Type: "text", Text: s}}
}

func toolUseBlock(tc ToolCall, i int) anthropicBlock {
	input := tc.Function.Arguments
	if input == nil {
		input = map[string]any{}
	}
	id := tc.ID
	if id == "" {
		id = fmt.Sprintf("toolu_%s_%d", tc.Function.Name, i)
	}
	return anthropicBlock{Type: "tool_use", ID: id, Name: tc.Function.Name, Input: input}
}

// toAnthropicTools maps OpenAI-style function definitions onto the
// Messages API tool shape. Entries without a function are skipped.
func toAnthropicTools(defs []map[string]any) []anthropicTool {
	var tools []anthropicTool
	for _, def := range defs {
		fn, ok := def["function"].(map[string]any)
		if !ok {
			continue
		}
		t := anthropicTool{InputSchema: fn["parameters"]}
		t.Name, _ = fn["name"].(string)
		t.Description, _ = fn["description"].(string)
		if t.InputSchema == nil {
			t.InputSchema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, t)
	}
	return tools
}

func fromAnthropic(wire *anthropicResponse) *ChatResponse {
	msg := Message{Role: wire.Role}
	if msg.Role == "" {
		msg.Role = RoleAssistant
	}

	var text strings.Builder
	for _, b := range wire.Content {
		switch b.Type {
		case "text":
			text.WriteString(b.Text)
		case "tool_use":
			args := b.Input
			if args == nil {
				args = map[string]any{}
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:       b.ID,
				Function: FunctionCall{Name: b.Name, Arguments: args},
			})
		}
	}
	msg.Content = text.String()

	return &ChatResponse{
		Model:        wire.Model,
		Message:      msg,
		InputTokens:  wire.Usage.InputTokens,
		OutputTokens: wire.Usage.OutputTokens,
	}
}
