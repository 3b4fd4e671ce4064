// Package search provides a pluggable web search interface for the agent.
//
// Each search provider implements the [Provider] interface and is
// registered by name. The [Manager] selects a provider based on
// configuration and exposes a single [Manager.Search] method that
// the tool layer calls.
package search

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Result is a single search result.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	// Content is longer page text when the provider returns it
	// (Tavily page content, Wikipedia article summaries).
	Content string `json:"content,omitempty"`
}

// Options are optional parameters for a search query.
type Options struct {
	// Count is the maximum number of results to return.
	// Providers may return fewer. Zero means provider default.
	Count int `json:"count,omitempty"`

	// Language is an ISO 639-1 language code (e.g., "en", "de").
	Language string `json:"language,omitempty"`
}

// Provider is the interface that search backends implement.
type Provider interface {
	// Name returns the provider identifier (e.g., "tavily", "wikipedia").
	Name() string

	// Search executes a query and returns results.
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Manager holds configured providers and routes searches. It is
// read-only after setup and safe for concurrent use.
type Manager struct {
	providers    map[string]Provider
	primary      string
	defaultCount int
}

// NewManager creates a search manager. The primary provider name
// determines which backend is used by default.
func NewManager(primary string) *Manager {
	return &Manager{
		providers: make(map[string]Provider),
		primary:   primary,
	}
}

// Register adds a provider to the manager.
func (m *Manager) Register(p Provider) {
	m.providers[p.Name()] = p
}

// SetDefaultCount sets the result count used when a search does not
// ask for one. Zero leaves the choice to each provider.
func (m *Manager) SetDefaultCount(n int) {
	m.defaultCount = n
}

// Primary returns the default provider name.
func (m *Manager) Primary() string { return m.primary }

// Search runs a query against the primary provider.
func (m *Manager) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	return m.SearchWith(ctx, m.primary, query, opts)
}

// SearchWith runs a query against a specific named provider.
func (m *Manager) SearchWith(ctx context.Context, provider, query string, opts Options) ([]Result, error) {
	p, ok := m.providers[provider]
	if !ok {
		return nil, fmt.Errorf("search provider %q not configured", provider)
	}
	if opts.Count <= 0 {
		opts.Count = m.defaultCount
	}
	return p.Search(ctx, query, opts)
}

// Has reports whether the named provider is registered.
func (m *Manager) Has(provider string) bool {
	_, ok := m.providers[provider]
	return ok
}

// Providers returns the names of all registered providers, sorted.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configured reports whether at least one provider is registered.
func (m *Manager) Configured() bool {
	return len(m.providers) > 0
}

// FormatResults builds a human-readable result string. Content, when
// present, is included after the snippet.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(strconv.Itoa(i+1) + ". " + r.Title + "\n   " + r.URL)
		if r.Snippet != "" {
			sb.WriteString("\n   " + r.Snippet)
		}
		if r.Content != "" {
			sb.WriteString("\n" + r.Content)
		}
	}
	return sb.String()
}
