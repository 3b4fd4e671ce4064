package tools

import (
	"github.com/nugget/smarty/internal/fetch"
	"github.com/nugget/smarty/internal/media"
	"github.com/nugget/smarty/internal/search"
)

// SetSearchManager adds web_search when the manager's primary provider
// is registered, and wikipedia_search when a "wikipedia" provider is.
func (r *Registry) SetSearchManager(mgr *search.Manager) {
	if mgr == nil {
		return
	}

	if mgr.Has(mgr.Primary()) {
		r.Register(&Tool{
			Name: "web_search",
			Description: "Search the web. Returns titles, URLs and snippets as JSON; some providers include page text. " +
				"Follow up with web_fetch to read a result in full.",
			Parameters: search.ToolDefinition(),
			Handler:    search.ToolHandler(mgr),
		})
	}

	if mgr.Has("wikipedia") {
		r.Register(&Tool{
			Name:        "wikipedia_search",
			Description: "Search Wikipedia and return the introductory summaries of the top matching articles.",
			Parameters:  search.WikipediaToolDefinition(),
			Handler:     search.WikipediaToolHandler(mgr),
		})
	}
}

// SetFetcher adds the web_fetch tool.
func (r *Registry) SetFetcher(f *fetch.Fetcher) {
	if f == nil {
		return
	}

	r.Register(&Tool{
		Name: "web_fetch",
		Description: "Fetch a web page and return its readable text, with tables rendered one row per line. " +
			"Binary documents are saved to a local file and the path is returned.",
		Parameters: fetch.ToolDefinition(),
		Handler:    fetch.ToolHandler(f),
	})
}

// SetMediaClient adds the query_video tool.
func (r *Registry) SetMediaClient(c *media.Client) {
	if c == nil {
		return
	}

	r.Register(&Tool{
		Name: "query_video",
		Description: "Answer a question about what is said in a video (YouTube or any yt-dlp source) " +
			"or a local audio/video file, using its subtitles or a speech-to-text transcript.",
		Parameters: media.ToolDefinition(),
		Handler:    media.ToolHandler(c),
	})
}
