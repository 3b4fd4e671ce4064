package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	pdfx "github.com/ledongthuc/pdf"
)

// DefaultMaxPDFPages bounds the pages extracted in one call.
const DefaultMaxPDFPages = 50

// ReadPDF extracts plain text from the selected pages of a PDF. pages
// is a list such as "1-3,7"; empty means every page.
func ReadPDF(path, pages string, maxPages int) (string, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxPDFPages
	}

	f, r, err := pdfx.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	selected := expandPages(pages, total)
	if len(selected) == 0 {
		for i := 1; i <= total; i++ {
			selected = append(selected, i)
		}
	}
	truncated := len(selected) > maxPages
	if truncated {
		selected = selected[:maxPages]
	}

	var out strings.Builder
	for _, n := range selected {
		p := r.Page(n)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", n, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&out, "--- Page %d ---\n%s\n\n", n, text)
	}

	if out.Len() == 0 {
		return fmt.Sprintf("No extractable text in %d page(s); the PDF may be scanned images.", total), nil
	}
	if truncated {
		fmt.Fprintf(&out, "(stopped after %d of %d pages)\n", maxPages, total)
	}
	return strings.TrimSpace(out.String()), nil
}

// expandPages parses a page list like "1-3,7" into page numbers within
// [1, total], dropping duplicates and out-of-range values.
func expandPages(spec string, total int) []int {
	var out []int
	seen := make(map[int]bool)
	add := func(n int) {
		if n >= 1 && n <= total && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			a, errA := strconv.Atoi(strings.TrimSpace(lo))
			b, errB := strconv.Atoi(strings.TrimSpace(hi))
			if errA != nil || errB != nil {
				continue
			}
			if a > b {
				a, b = b, a
			}
			for i := a; i <= b && i <= total; i++ {
				add(i)
			}
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			add(n)
		}
	}
	return out
}

func (r *Registry) registerPDFTools() {
	r.Register(&Tool{
		Name:        "read_pdf",
		Description: "Extract the text of a local PDF file, page by page.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "Local path of the PDF",
				},
				"pages": map[string]any{
					"type":        "string",
					"description": "Pages to read, e.g. \"1-3,7\" (default: all)",
				},
			},
			"required": []string{"file_path"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "file_path")
			if path == "" {
				return "", fmt.Errorf("file_path is required")
			}
			return ReadPDF(path, stringArg(args, "pages"), 0)
		},
	})
}
