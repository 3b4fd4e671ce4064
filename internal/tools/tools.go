// Package tools defines the tools available to the executor.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string                                                         `json:"name"`
	Description string                                                         `json:"description"`
	Parameters  map[string]any                                                 `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds available tools. Registration happens during startup;
// after that the registry is read-only and safe for concurrent use.
type Registry struct {
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates a registry with the built-in file tools and the
// calculator. Tools that need external services are added with the
// Set* methods.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	r.registerCalculator()
	r.registerSpreadsheetTools()
	r.registerPDFTools()
	r.registerInspectTools()
}

// Register adds a tool to the registry, replacing any tool with the
// same name.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all tools as OpenAI-style function definitions, sorted
// by name so prompts are stable across runs.
func (r *Registry) List() []map[string]any {
	result := make([]map[string]any, 0, len(r.tools))
	for _, name := range r.Names() {
		t := r.tools[name]
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  params,
			},
		})
	}
	return result
}

// Execute runs a tool by name. Unknown tools return
// *ErrToolUnavailable; handler failures and panics are returned as
// *ToolInvocationError.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result string, err error) {
	tool := r.tools[name]
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}
	if args == nil {
		args = map[string]any{}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool handler panicked",
				"tool", name,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			result = ""
			err = &ToolInvocationError{ToolName: name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	r.logger.Log(ctx, levelTrace, "executing tool", "tool", name, "args", args)

	out, herr := tool.Handler(ctx, args)
	if herr != nil {
		return "", &ToolInvocationError{ToolName: name, Err: herr}
	}
	return out, nil
}

// levelTrace matches config.LevelTrace without importing config.
const levelTrace = slog.Level(-8)

// stringArg returns a trimmed string argument or "".
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// intArg returns an integer argument, accepting JSON numbers and
// numeric strings, or def when absent.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}
