// Package fetch downloads web pages and extracts their readable text.
// Binary responses (PDFs, images, audio) are saved to the scratch
// directory so the file tools can read them.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/nugget/smarty/internal/httpkit"
)

// DefaultTimeout is the HTTP request timeout for fetching pages.
const DefaultTimeout = 30 * time.Second

// DefaultMaxBytes is the maximum response body size (20 MB).
const DefaultMaxBytes int64 = 20 * 1024 * 1024

// DefaultMaxChars is the default character limit for extracted text.
const DefaultMaxChars = 50000

// Result holds the fetched and extracted content from a URL.
type Result struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
	Length      int    `json:"length"`
	StatusCode  int    `json:"status_code"`
	// SavedPath is set when a binary body was written to disk.
	SavedPath string `json:"saved_path,omitempty"`
}

// Config configures a Fetcher.
type Config struct {
	// Client overrides the default httpkit client.
	Client   *http.Client
	MaxBytes int64
	// SaveDir receives binary downloads; empty means os.TempDir().
	SaveDir string
}

// Fetcher downloads and extracts readable content from web pages.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	saveDir  string
	logger   *slog.Logger
}

// New creates a Fetcher.
func New(cfg Config, logger *slog.Logger) *Fetcher {
	if cfg.Client == nil {
		cfg.Client = httpkit.NewClient(httpkit.WithTimeout(DefaultTimeout))
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.SaveDir == "" {
		cfg.SaveDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:   cfg.Client,
		maxBytes: cfg.MaxBytes,
		saveDir:  cfg.SaveDir,
		logger:   logger,
	}
}

// Fetch downloads the URL and extracts readable text content.
// maxChars limits the output length; 0 uses DefaultMaxChars.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxChars int) (*Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("web_fetch: url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("web_fetch: invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web_fetch: request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("web_fetch: HTTP %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 256))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("web_fetch: read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	result := &Result{
		URL:         rawURL,
		ContentType: contentType,
		StatusCode:  resp.StatusCode,
	}

	switch classify(contentType, body) {
	case kindHTML:
		result.Title, result.Content = extractHTML(string(body))
	case kindText:
		result.Content = string(body)
	default:
		path, err := f.save(body)
		if err != nil {
			return nil, err
		}
		result.SavedPath = path
		result.Length = len(body)
		result.Content = fmt.Sprintf("Binary content (%s), %d bytes, saved to %s", mimetype.Detect(body).String(), len(body), path)
		return result, nil
	}

	if n := utf8.RuneCountInString(result.Content); n > maxChars {
		result.Content = clipRunes(result.Content, maxChars)
		result.Truncated = true
	}
	result.Length = len(result.Content)

	f.logger.Debug("page fetched",
		"url", rawURL,
		"status", resp.StatusCode,
		"chars", result.Length,
		"truncated", result.Truncated,
	)
	return result, nil
}

// save writes a binary body to the save directory with an extension
// chosen from its detected content type.
func (f *Fetcher) save(body []byte) (string, error) {
	if err := os.MkdirAll(f.saveDir, 0o755); err != nil {
		return "", fmt.Errorf("web_fetch: create save dir: %w", err)
	}
	ext := mimetype.Detect(body).Extension()
	fh, err := os.CreateTemp(f.saveDir, "fetch_*"+ext)
	if err != nil {
		return "", fmt.Errorf("web_fetch: create file: %w", err)
	}
	_, werr := fh.Write(body)
	cerr := fh.Close()
	if werr != nil || cerr != nil {
		os.Remove(fh.Name())
		return "", fmt.Errorf("web_fetch: write file: %v", firstErr(werr, cerr))
	}
	f.logger.Info("binary download saved", "path", fh.Name(), "bytes", len(body))
	return fh.Name(), nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

type bodyKind int

const (
	kindBinary bodyKind = iota
	kindText
	kindHTML
)

// classify decides how to treat a response body. The declared type wins
// when it is specific; missing or generic types fall back to sniffing.
func classify(contentType string, body []byte) bodyKind {
	declared := strings.ToLower(strings.TrimSpace(contentType))
	if mt, _, ok := strings.Cut(declared, ";"); ok {
		declared = strings.TrimSpace(mt)
	}

	switch {
	case declared == "text/html" || declared == "application/xhtml+xml":
		return kindHTML
	case strings.HasPrefix(declared, "text/"), declared == "application/json", strings.HasSuffix(declared, "+json"),
		declared == "application/xml", strings.HasSuffix(declared, "+xml"):
		return kindText
	case declared != "" && declared != "application/octet-stream" && declared != "binary/octet-stream":
		return kindBinary
	}

	sniffed := mimetype.Detect(body)
	switch {
	case sniffed.Is("text/html"):
		return kindHTML
	case strings.HasPrefix(sniffed.String(), "text/") && utf8.Valid(body):
		return kindText
	}
	return kindBinary
}

// clipRunes cuts s to at most n runes.
func clipRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
