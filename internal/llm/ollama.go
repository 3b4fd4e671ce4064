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

// OllamaClient is a client for the native Ollama chat API.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(baseURL string, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := httpkit.NewTransport()
	// Large local models with tools can take minutes to produce headers.
	t.ResponseHeaderTimeout = 5 * time.Minute

	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("provider", "ollama"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
			httpkit.WithRetry(3, 2*time.Second),
			httpkit.WithLogger(logger),
		),
	}
}

type ollamaRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Format   string           `json:"format,omitempty"`
	Options  ollamaOptions    `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"` // Ollama returns an object, not a string
	} `json:"function"`
}

// ollamaWireResponse is the /api/chat response body.
type ollamaWireResponse struct {
	Model           string        `json:"model"`
	CreatedAt       string        `json:"created_at"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	TotalDuration   int64         `json:"total_duration,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

func (w *ollamaWireResponse) toChatResponse() *ChatResponse {
	resp := &ChatResponse{
		Model: w.Model,
		Message: Message{
			Role:    w.Message.Role,
			Content: w.Message.Content,
		},
		InputTokens:  w.PromptEvalCount,
		OutputTokens: w.EvalCount,
		Duration:     time.Duration(w.TotalDuration),
	}
	if resp.Message.Role == "" {
		resp.Message.Role = RoleAssistant
	}
	if t, err := time.Parse(time.RFC3339Nano, w.CreatedAt); err == nil {
		resp.CreatedAt = t
	}
	for i, tc := range w.Message.ToolCalls {
		args := tc.Function.Arguments
		if args == nil {
			args = map[string]any{}
		}
		resp.Message.ToolCalls = append(resp.Message.ToolCalls, ToolCall{
			ID:       fmt.Sprintf("ollama_%s_%d", tc.Function.Name, i),
			Function: FunctionCall{Name: tc.Function.Name, Arguments: args},
		})
	}
	return resp
}

// Chat sends a non-streaming chat request to Ollama.
func (c *OllamaClient) Chat(ctx context.Context, req Request) (*ChatResponse, error) {
	wireReq := ollamaRequest{
		Model:    req.Model,
		Messages: convertToOllama(req.Messages),
		Tools:    req.Tools,
		Options:  ollamaOptions{Temperature: req.Temperature},
	}
	if req.JSONMode && len(req.Tools) == 0 {
		wireReq.Format = "json"
	}

	jsonData, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		return nil, fmt.Errorf("ollama API error %d: %s", resp.StatusCode, errBody)
	}

	var wire ollamaWireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	result := wire.toChatResponse()

	// Many local models emit tool calls as JSON text instead of using
	// the native tool_calls field.
	if len(req.Tools) > 0 && len(result.Message.ToolCalls) == 0 && result.Message.Content != "" {
		if parsed := parseTextToolCalls(result.Message.Content, toolNames(req.Tools)); len(parsed) > 0 {
			c.logger.Debug("parsed tool calls from content", "count", len(parsed))
			result.Message.ToolCalls = parsed
			result.Message.Content = ""
		}
	}

	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.Message.ToolCalls),
	)
	return result, nil
}

func convertToOllama(messages []Message) []ollamaMessage {
	// Ollama correlates tool results by name, not ID.
	names := make(map[string]string)
	out := make([]ollamaMessage, 0, len(messages))
	for _, msg := range messages {
		m := ollamaMessage{Role: msg.Role, Content: msg.Content}
		for _, tc := range msg.ToolCalls {
			names[tc.ID] = tc.Function.Name
			var otc ollamaToolCall
			otc.Function.Name = tc.Function.Name
			otc.Function.Arguments = tc.Function.Arguments
			m.ToolCalls = append(m.ToolCalls, otc)
		}
		if msg.Role == RoleTool {
			m.ToolName = names[msg.ToolCallID]
		}
		out = append(out, m)
	}
	return out
}

// toolNames extracts function names from OpenAI-style tool definitions.
func toolNames(tools []map[string]any) map[string]bool {
	names := make(map[string]bool, len(tools))
	for _, t := range tools {
		if fn, ok := t["function"].(map[string]any); ok {
			if name, ok := fn["name"].(string); ok {
				names[name] = true
			}
		}
	}
	return names
}

// parseTextToolCalls attempts to extract tool calls from content text.
// It handles a raw JSON object {"name": ..., "arguments": {...}}, a JSON
// array of such objects, and the same wrapped in <tool_call> tags. Calls
// naming tools outside valid are discarded so prose that happens to be
// JSON is not misread as a call.
func parseTextToolCalls(content string, valid map[string]bool) []ToolCall {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if start := strings.Index(content, "<tool_call>"); start != -1 {
		rest := content[start+len("<tool_call>"):]
		if end := strings.Index(rest, "</tool_call>"); end != -1 {
			rest = rest[:end]
		}
		content = strings.TrimSpace(rest)
	}

	type textCall struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}

	var calls []textCall
	if err := json.Unmarshal([]byte(content), &calls); err != nil {
		var single textCall
		if err := json.Unmarshal([]byte(content), &single); err != nil || single.Name == "" {
			return nil
		}
		calls = []textCall{single}
	}

	var result []ToolCall
	for i, c := range calls {
		if c.Name == "" || !valid[c.Name] {
			continue
		}
		args := c.Arguments
		if args == nil {
			args = map[string]any{}
		}
		result = append(result, ToolCall{
			ID:       fmt.Sprintf("text_%s_%d", c.Name, i),
			Function: FunctionCall{Name: c.Name, Arguments: args},
		})
	}
	return result
}
