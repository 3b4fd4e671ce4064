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

// OpenAIClient speaks the OpenAI chat completions wire format. It
// serves OpenAI itself and compatible hosts such as Groq, selected by
// base URL.
type OpenAIClient struct {
	provider   string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
// baseURL includes the version segment (e.g. https://api.openai.com/v1).
func NewOpenAIClient(provider, baseURL, apiKey string, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 180 * time.Second

	return &OpenAIClient{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		logger:   logger.With("provider", provider),
		httpClient: httpkit.NewClient(
			// Reasoning models can take minutes; rely on ctx for deadlines.
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		),
	}
}

type openaiRequest struct {
	Model          string                `json:"model"`
	Messages       []openaiMessage       `json:"messages"`
	Tools          []map[string]any      `json:"tools,omitempty"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openaiResponseFormat `json:"response_format,omitempty"`
}

type openaiResponseFormat struct {
	Type string `json:"type"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Message struct {
			Role      string           `json:"role"`
			Content   string           `json:"content"`
			Reasoning string           `json:"reasoning,omitempty"`
			ToolCalls []openaiToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat sends a chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, req Request) (*ChatResponse, error) {
	wireReq := openaiRequest{
		Model:       req.Model,
		Messages:    convertToOpenAI(req.Messages),
		Tools:       req.Tools,
		Temperature: req.Temperature,
	}
	if req.JSONMode && len(req.Tools) == 0 {
		wireReq.ResponseFormat = &openaiResponseFormat{Type: "json_object"}
	}

	c.logger.Debug("preparing request",
		"model", req.Model,
		"messages", len(wireReq.Messages),
		"tools", len(req.Tools),
		"json_mode", wireReq.ResponseFormat != nil,
	)

	jsonData, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, fmt.Errorf("%s API error %d: %s", c.provider, resp.StatusCode, errBody)
	}

	var wire openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	result, err := wire.toChatResponse()
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)

	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.Message.ToolCalls),
		"duration", result.Duration,
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", result.Message.Content)

	return result, nil
}

// convertToOpenAI converts internal messages to the OpenAI wire format.
// Assistant messages that only carry tool calls send a null content.
func convertToOpenAI(messages []Message) []openaiMessage {
	out := make([]openaiMessage, 0, len(messages))
	for _, msg := range messages {
		content := msg.Content
		m := openaiMessage{
			Role:       msg.Role,
			Content:    &content,
			ToolCallID: msg.ToolCallID,
		}
		if msg.Role == RoleAssistant && len(msg.ToolCalls) > 0 {
			if msg.Content == "" {
				m.Content = nil
			}
			for i, tc := range msg.ToolCalls {
				id := tc.ID
				if id == "" {
					id = fmt.Sprintf("call_%s_%d", tc.Function.Name, i)
				}
				var wtc openaiToolCall
				wtc.ID = id
				wtc.Type = "function"
				wtc.Function.Name = tc.Function.Name
				wtc.Function.Arguments = encodeArguments(tc.Function.Arguments)
				m.ToolCalls = append(m.ToolCalls, wtc)
			}
		}
		out = append(out, m)
	}
	return out
}

func (r *openaiResponse) toChatResponse() (*ChatResponse, error) {
	if len(r.Choices) == 0 {
		return nil, fmt.Errorf("response %q has no choices", r.ID)
	}
	choice := r.Choices[0].Message

	var toolCalls []ToolCall
	for _, tc := range choice.ToolCalls {
		toolCalls = append(toolCalls, ToolCall{
			ID: tc.ID,
			Function: FunctionCall{
				Name:      tc.Function.Name,
				Arguments: decodeArguments(tc.Function.Arguments),
			},
		})
	}

	role := choice.Role
	if role == "" {
		role = RoleAssistant
	}

	resp := &ChatResponse{
		Model: r.Model,
		Message: Message{
			Role:      role,
			Content:   stripThinking(choice.Content),
			ToolCalls: toolCalls,
		},
		InputTokens:  r.Usage.PromptTokens,
		OutputTokens: r.Usage.CompletionTokens,
	}
	if r.Created > 0 {
		resp.CreatedAt = time.Unix(r.Created, 0)
	}
	return resp, nil
}

// stripThinking removes a leading <think>...</think> block that
// reasoning models emit inline when the host does not parse it out.
func stripThinking(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "<think>") {
		return content
	}
	end := strings.Index(trimmed, "</think>")
	if end == -1 {
		return content
	}
	return strings.TrimSpace(trimmed[end+len("</think>"):])
}
