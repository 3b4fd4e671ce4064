package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nugget/smarty/internal/httpkit"
)

const (
	// DefaultWikipediaResults is the number of articles summarized per
	// query.
	DefaultWikipediaResults = 3

	// wikipediaMaxChars bounds the combined tool output.
	wikipediaMaxChars = 4000
)

// Wikipedia searches Wikipedia with the MediaWiki API and returns the
// introduction of each matching article as Content.
type Wikipedia struct {
	language   string
	baseURL    string
	httpClient *http.Client
}

// NewWikipedia creates a Wikipedia provider for the given language
// edition ("en" when empty). httpClient may be nil.
func NewWikipedia(language string, httpClient *http.Client) *Wikipedia {
	if language == "" {
		language = "en"
	}
	if httpClient == nil {
		httpClient = httpkit.NewClient()
	}
	return &Wikipedia{
		language:   language,
		httpClient: httpClient,
	}
}

func (w *Wikipedia) Name() string { return "wikipedia" }

func (w *Wikipedia) apiURL(lang string) string {
	if w.baseURL != "" {
		return w.baseURL
	}
	return fmt.Sprintf("https://%s.wikipedia.org/w/api.php", lang)
}

type wikiSearchResponse struct {
	Query struct {
		Search []struct {
			Title   string `json:"title"`
			PageID  int    `json:"pageid"`
			Snippet string `json:"snippet"`
		} `json:"search"`
	} `json:"query"`
}

type wikiExtractResponse struct {
	Query struct {
		Pages map[string]struct {
			PageID  int    `json:"pageid"`
			Title   string `json:"title"`
			Extract string `json:"extract"`
			Missing *bool  `json:"missing,omitempty"`
		} `json:"pages"`
	} `json:"query"`
}

func (w *Wikipedia) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	count := opts.Count
	if count == 0 {
		count = DefaultWikipediaResults
	}
	lang := w.language
	if opts.Language != "" {
		lang = opts.Language
	}

	var sr wikiSearchResponse
	err := w.get(ctx, lang, url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {strconv.Itoa(count)},
		"format":   {"json"},
	}, &sr)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(sr.Query.Search))
	for _, hit := range sr.Query.Search {
		extract, err := w.extract(ctx, lang, hit.PageID)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{
			Title:   hit.Title,
			URL:     fmt.Sprintf("https://%s.wikipedia.org/wiki/%s", lang, url.PathEscape(strings.ReplaceAll(hit.Title, " ", "_"))),
			Snippet: stripHTML(hit.Snippet),
			Content: extract,
		})
	}
	return results, nil
}

// extract fetches the plain-text introduction of a page.
func (w *Wikipedia) extract(ctx context.Context, lang string, pageID int) (string, error) {
	var er wikiExtractResponse
	err := w.get(ctx, lang, url.Values{
		"action":      {"query"},
		"prop":        {"extracts"},
		"exintro":     {"1"},
		"explaintext": {"1"},
		"redirects":   {"1"},
		"pageids":     {strconv.Itoa(pageID)},
		"format":      {"json"},
	}, &er)
	if err != nil {
		return "", err
	}
	for _, p := range er.Query.Pages {
		if p.Missing == nil {
			return strings.TrimSpace(p.Extract), nil
		}
	}
	return "", nil
}

func (w *Wikipedia) get(ctx context.Context, lang string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.apiURL(lang)+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("wikipedia: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wikipedia: request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wikipedia: HTTP %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("wikipedia: decode response: %w", err)
	}
	return nil
}

// FormatWikipedia renders article summaries as "Page:/Summary:" blocks,
// capped at a few thousand characters.
func FormatWikipedia(results []Result) string {
	if len(results) == 0 {
		return "No good Wikipedia Search Result was found"
	}
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		summary := r.Content
		if summary == "" {
			summary = r.Snippet
		}
		blocks = append(blocks, "Page: "+r.Title+"\nSummary: "+summary)
	}
	out := strings.Join(blocks, "\n\n")
	if len(out) > wikipediaMaxChars {
		out = strings.ToValidUTF8(out[:wikipediaMaxChars], "")
	}
	return out
}
