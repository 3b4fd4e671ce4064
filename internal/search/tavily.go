package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nugget/smarty/internal/httpkit"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// DefaultTavilyResults matches the result count the agent was tuned
// with.
const DefaultTavilyResults = 3

// Tavily implements the Provider interface for the Tavily search API,
// which returns extracted page content alongside each hit.
type Tavily struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewTavily creates a Tavily provider. httpClient may be nil.
func NewTavily(apiKey string, httpClient *http.Client) *Tavily {
	if httpClient == nil {
		httpClient = httpkit.NewClient()
	}
	return &Tavily{
		apiKey:     apiKey,
		endpoint:   tavilyEndpoint,
		httpClient: httpClient,
	}
}

func (t *Tavily) Name() string { return "tavily" }

type tavilyRequest struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth,omitempty"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Answer  string         `json:"answer"`
	Results []tavilyResult `json:"results"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

func (t *Tavily) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	count := opts.Count
	if count == 0 {
		count = DefaultTavilyResults
	}

	body, err := json.Marshal(tavilyRequest{
		Query:       query,
		MaxResults:  count,
		SearchDepth: "basic",
	})
	if err != nil {
		return nil, fmt.Errorf("tavily: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tavily: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily: request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily: HTTP %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}

	results := make([]Result, 0, len(tr.Results))
	for _, r := range tr.Results {
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
		})
	}
	return results, nil
}
