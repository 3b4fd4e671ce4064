package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nugget/smarty/internal/httpkit"
)

const searxngDefaultCount = 5

// SearXNG queries a self-hosted SearXNG metasearch instance through its
// JSON API. The instance must have the json format enabled.
type SearXNG struct {
	endpoint string
	client   *http.Client
}

// NewSearXNG returns a provider for the instance rooted at baseURL,
// for example "http://localhost:8080".
func NewSearXNG(baseURL string) *SearXNG {
	return &SearXNG{
		endpoint: strings.TrimRight(baseURL, "/") + "/search",
		client:   httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
	}
}

func (s *SearXNG) Name() string { return "searxng" }

type searxngPayload struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
	Infoboxes []struct {
		Infobox string `json:"infobox"`
		ID      string `json:"id"`
		Content string `json:"content"`
	} `json:"infoboxes"`
}

// Search returns infobox summaries first, since they tend to hold the
// direct fact a question asks for, followed by ordinary results. Entries
// repeating an earlier URL are dropped.
func (s *SearXNG) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("categories", "general")
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("searxng: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng: request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("searxng: HTTP %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	var payload searxngPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("searxng: decode response: %w", err)
	}

	limit := opts.Count
	if limit <= 0 {
		limit = searxngDefaultCount
	}

	seen := make(map[string]bool)
	var out []Result
	add := func(r Result) {
		if len(out) >= limit || r.URL == "" || seen[r.URL] {
			return
		}
		seen[r.URL] = true
		out = append(out, r)
	}

	for _, ib := range payload.Infoboxes {
		if ib.Content == "" {
			continue
		}
		add(Result{Title: ib.Infobox, URL: ib.ID, Content: ib.Content})
	}
	for _, r := range payload.Results {
		add(Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return out, nil
}
