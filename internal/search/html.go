package search

import (
	"strings"

	"golang.org/x/net/html"
)

// stripHTML removes markup from search snippets (Wikipedia wraps
// matches in <span class="searchmatch">) and decodes entities.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			sb.Write(z.Text())
		}
	}
}
