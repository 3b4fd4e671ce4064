package llm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestToAnthropicTurns(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "You are a careful researcher."},
		{Role: RoleUser, Content: "Hello!"},
		{Role: RoleAssistant, Content: "Hi there!"},
		{Role: RoleUser, Content: "How many studio albums?"},
		{Role: RoleUser, Content: "Between 2000 and 2009."},
		{Role: RoleSystem, Content: "Be brief."},
	}

	turns, system := toAnthropicTurns(messages)

	if system != "You are a careful researcher.\n\nBe brief." {
		t.Errorf("system = %q", system)
	}
	if len(turns) != 3 {
		t.Fatalf("turns = %d, want 3 (system lifted, user turns merged)", len(turns))
	}
	if turns[0].Role != RoleUser || turns[1].Role != RoleAssistant || turns[2].Role != RoleUser {
		t.Errorf("roles = %s %s %s", turns[0].Role, turns[1].Role, turns[2].Role)
	}
	if len(turns[2].Content) != 2 || turns[2].Content[1].Text != "Between 2000 and 2009." {
		t.Errorf("merged user turn = %+v", turns[2].Content)
	}
}

func TestToAnthropicTurns_ToolCalls(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "Search twice."},
		{
			Role: RoleAssistant,
			ToolCalls: []ToolCall{
				{ID: "toolu_a", Function: FunctionCall{Name: "web_search", Arguments: map[string]any{"query": "a"}}},
				{Function: FunctionCall{Name: "web_search"}},
			},
		},
		{Role: RoleTool, Content: "A.", ToolCallID: "toolu_a"},
		{Role: RoleTool, Content: "B.", ToolCallID: "toolu_web_search_1"},
	}

	turns, _ := toAnthropicTurns(messages)

	// user, assistant with tool_use, one user turn with both tool_results
	if len(turns) != 3 {
		t.Fatalf("turns = %d, want 3", len(turns))
	}

	uses := turns[1].Content
	if len(uses) != 2 || uses[0].Type != "tool_use" {
		t.Fatalf("assistant blocks = %+v", uses)
	}
	if uses[1].ID != "toolu_web_search_1" || uses[1].Input == nil {
		t.Errorf("generated tool_use = %+v", uses[1])
	}

	results := turns[2].Content
	if len(results) != 2 || results[0].Type != "tool_result" {
		t.Fatalf("tool results = %+v", results)
	}
	if results[1].ToolUseID != "toolu_web_search_1" {
		t.Errorf("second tool_use_id = %s", results[1].ToolUseID)
	}
}

func TestToAnthropicTools(t *testing.T) {
	tools := []map[string]any{
		{
			"type": "function",
			"function": map[string]any{
				"name":        "calculator",
				"description": "Evaluate an arithmetic expression",
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"expression": map[string]any{"type": "string"},
					},
					"required": []string{"expression"},
				},
			},
		},
		{"type": "function", "function": map[string]any{"name": "no_params"}},
		{"type": "bogus"},
	}

	result := toAnthropicTools(tools)
	if len(result) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(result))
	}
	if result[0].Name != "calculator" || result[0].Description == "" {
		t.Errorf("unexpected tool: %+v", result[0])
	}
	if result[1].InputSchema == nil {
		t.Error("missing parameters should default to an empty object schema")
	}
}

func TestFromAnthropic_ToolUse(t *testing.T) {
	raw := `{
		"id": "msg_1", "role": "assistant", "model": "claude-sonnet-4-20250514",
		"content": [
			{"type": "text", "text": "Checking."},
			{"type": "tool_use", "id": "toolu_1", "name": "read_pdf", "input": {"path": "/tmp/x.pdf"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 100, "output_tokens": 20}
	}`
	var wire anthropicResponse
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		t.Fatal(err)
	}
	resp := fromAnthropic(&wire)

	if resp.Message.Content != "Checking." {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if len(resp.Message.ToolCalls) != 1 || resp.Message.ToolCalls[0].Function.Arguments["path"] != "/tmp/x.pdf" {
		t.Errorf("tool calls = %+v", resp.Message.ToolCalls)
	}
	if resp.InputTokens != 100 || resp.OutputTokens != 20 {
		t.Errorf("usage = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestAnthropicChat_JSONModeInstruction(t *testing.T) {
	var req anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Write([]byte(`{"role":"assistant","content":[{"type":"text","text":"{}"}],"usage":{}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(srv.URL, "key", slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := c.Chat(context.Background(), Request{
		Model:    "claude",
		Messages: []Message{{Role: RoleSystem, Content: "Plan."}, {Role: RoleUser, Content: "q"}},
		JSONMode: true,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.HasPrefix(req.System, "Plan.") || !strings.Contains(req.System, "JSON object") {
		t.Errorf("system = %q", req.System)
	}
}
