package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const maxToolResults = 10

// ToolHandler adapts the manager to the web_search tool. Results are
// returned as a JSON array; an explicit provider argument overrides the
// primary.
func ToolHandler(mgr *Manager) func(ctx context.Context, args map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		query := stringArg(args, "query")
		if query == "" {
			return "", fmt.Errorf("web_search: query is required")
		}
		opts := Options{
			Count:    min(intArg(args, "count"), maxToolResults),
			Language: stringArg(args, "language"),
		}

		provider := stringArg(args, "provider")
		if provider == "" {
			provider = mgr.Primary()
		}
		results, err := mgr.SearchWith(ctx, provider, query, opts)
		if err != nil {
			return "", err
		}
		if len(results) == 0 {
			return "No results found.", nil
		}

		out, err := json.Marshal(results)
		if err != nil {
			return FormatResults(results), nil
		}
		return string(out), nil
	}
}

// ToolDefinition is the parameter schema for web_search.
func ToolDefinition() map[string]any {
	return objectSchema([]string{"query"}, map[string]any{
		"query":    prop("string", "The search query string."),
		"count":    prop("integer", fmt.Sprintf("Maximum number of results to return (1-%d).", maxToolResults)),
		"language": prop("string", "ISO 639-1 language code for results (e.g., 'en', 'de')."),
		"provider": prop("string", "Search provider to use. Omit for default."),
	})
}

// WikipediaToolHandler searches only the "wikipedia" provider and
// returns article summaries as text.
func WikipediaToolHandler(mgr *Manager) func(ctx context.Context, args map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		query := stringArg(args, "query")
		if query == "" {
			return "", fmt.Errorf("wikipedia_search: query is required")
		}
		results, err := mgr.SearchWith(ctx, "wikipedia", query, Options{Language: stringArg(args, "language")})
		if err != nil {
			return "", err
		}
		return FormatWikipedia(results), nil
	}
}

// WikipediaToolDefinition is the parameter schema for wikipedia_search.
func WikipediaToolDefinition() map[string]any {
	return objectSchema([]string{"query"}, map[string]any{
		"query":    prop("string", "The query to search Wikipedia for"),
		"language": prop("string", "Wikipedia language edition (default: en)"),
	})
}

func objectSchema(required []string, props map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// intArg reads a JSON number argument. Missing or non-positive values
// yield 0.
func intArg(args map[string]any, key string) int {
	if f, ok := args[key].(float64); ok && f > 0 {
		return int(f)
	}
	return 0
}
