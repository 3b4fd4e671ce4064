// Package engine wraps an LLM client with the per-role settings used by
// the agent loop. It offers three modes of invocation: free text,
// schema-constrained structured output, and a bounded tool-calling loop.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/smarty/internal/llm"
)

// Usage is the token accounting for one model call.
type Usage struct {
	Role         string
	Model        string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// UsageRecorder receives token accounting for every model call. The
// context is the caller's, so recorders may read request-scoped values
// such as a run identifier.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, u Usage)
}

// Config configures an Engine.
type Config struct {
	Client      llm.Client
	Model       string
	Temperature float64
	// Role names the engine in logs and usage records (planner,
	// executor, replanner, finalizer, vision, ...).
	Role   string
	Logger *slog.Logger
	Usage  UsageRecorder
}

// Engine is a reasoning engine bound to one model and temperature.
// It is safe for concurrent use when the underlying client is.
type Engine struct {
	client      llm.Client
	model       string
	temperature float64
	role        string
	logger      *slog.Logger
	usage       UsageRecorder
}

// New creates an Engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:      cfg.Client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		role:        cfg.Role,
		logger:      logger.With("role", cfg.Role, "model", cfg.Model),
		usage:       cfg.Usage,
	}
}

// Model returns the model name the engine invokes.
func (e *Engine) Model() string { return e.model }

// Role returns the engine's role name.
func (e *Engine) Role() string { return e.role }

// chat performs one model call and records usage.
func (e *Engine) chat(ctx context.Context, messages []llm.Message, tools []map[string]any, jsonMode bool) (*llm.ChatResponse, error) {
	start := time.Now()
	resp, err := e.client.Chat(ctx, llm.Request{
		Model:       e.model,
		Messages:    messages,
		Tools:       tools,
		Temperature: e.temperature,
		JSONMode:    jsonMode,
	})
	if err != nil {
		return nil, fmt.Errorf("%s model call: %w", e.role, err)
	}

	elapsed := time.Since(start)
	if e.usage != nil {
		e.usage.RecordUsage(ctx, Usage{
			Role:         e.role,
			Model:        e.model,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			Duration:     elapsed,
		})
	}
	e.logger.Debug("model call complete",
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"tool_calls", len(resp.Message.ToolCalls),
		"elapsed", elapsed.Round(time.Millisecond),
	)
	return resp, nil
}

// Text sends messages and returns the reply text.
func (e *Engine) Text(ctx context.Context, messages []llm.Message) (string, error) {
	resp, err := e.chat(ctx, messages, nil, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// Complete sends a single user prompt and returns the reply text.
func (e *Engine) Complete(ctx context.Context, prompt string) (string, error) {
	return e.Text(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
}

// Structured asks for a JSON object described by schema and decodes
// it into out. A reply that cannot be decoded is a *DecodeError; the
// engine never substitutes a default value.
func (e *Engine) Structured(ctx context.Context, messages []llm.Message, schema Schema, out any) error {
	msgs := make([]llm.Message, 0, len(messages)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: schema.Instruction()})
	msgs = append(msgs, messages...)

	resp, err := e.chat(ctx, msgs, nil, true)
	if err != nil {
		return err
	}

	if err := DecodeJSON(resp.Message.Content, out); err != nil {
		e.logger.Warn("structured output did not decode",
			"schema", schema.Name,
			"error", err,
			"content_len", len(resp.Message.Content),
		)
		return &DecodeError{Schema: schema.Name, Raw: resp.Message.Content, Err: err}
	}
	return nil
}
