// Package acquire downloads the file attached to a task into the
// scratch directory.
package acquire

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/nugget/smarty/internal/httpkit"
)

// DefaultBaseURL is the task file server.
const DefaultBaseURL = "https://agents-course-unit4-scoring.hf.space"

// DefaultTimeout bounds a single download.
const DefaultTimeout = 2 * time.Minute

// extensionTable maps content types to file extensions. It is checked
// in order and matched by substring, so parameters such as charset
// are ignored.
var extensionTable = []struct {
	contentType string
	ext         string
}{
	{"application/pdf", ".pdf"},
	{"image/jpeg", ".jpg"},
	{"image/jpg", ".jpg"},
	{"image/png", ".png"},
	{"image/gif", ".gif"},
	{"image/webp", ".webp"},
	{"audio/mpeg", ".mp3"},
	{"audio/mp3", ".mp3"},
	{"audio/wav", ".wav"},
	{"audio/ogg", ".ogg"},
	{"video/mp4", ".mp4"},
	{"video/webm", ".webm"},
	{"video/avi", ".avi"},
	{"text/plain", ".txt"},
	{"text/csv", ".csv"},
	{"application/json", ".json"},
	{"application/xml", ".xml"},
	{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ".xlsx"},
	{"application/vnd.ms-excel", ".xls"},
	{"application/msword", ".doc"},
	{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", ".docx"},
	{"application/zip", ".zip"},
	{"application/x-zip-compressed", ".zip"},
}

// ExtensionFor returns the file extension for a Content-Type header
// value, or "" when the type is unknown or absent.
func ExtensionFor(contentType string) string {
	ct := strings.ToLower(contentType)
	if ct == "" {
		return ""
	}
	for _, e := range extensionTable {
		if strings.Contains(ct, e.contentType) {
			return e.ext
		}
	}
	return ""
}

// Config configures a Client.
type Config struct {
	// BaseURL is the file server root; files live at <BaseURL>/files/<id>.
	BaseURL string
	// ScratchDir receives downloaded files. Empty means os.TempDir().
	ScratchDir string
	// Client overrides the default httpkit client.
	Client *http.Client
}

// Client fetches task attachments.
type Client struct {
	baseURL    string
	scratchDir string
	http       *http.Client
	logger     *slog.Logger
}

// New creates an acquisition client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	if cfg.Client == nil {
		cfg.Client = httpkit.NewClient(httpkit.WithTimeout(DefaultTimeout))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		scratchDir: cfg.ScratchDir,
		http:       cfg.Client,
		logger:     logger,
	}
}

// FileURL returns the download URL for a task's attachment.
func (c *Client) FileURL(taskID string) string {
	return c.baseURL + "/files/" + url.PathEscape(taskID)
}

var unsafeNameRe = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Acquire downloads the attachment for taskID and returns the absolute
// path of the saved file. The file is left in place for the rest of
// the task; cleaning the scratch directory is the caller's concern.
func (c *Client) Acquire(ctx context.Context, taskID string) (string, error) {
	fileURL := c.FileURL(taskID)
	fail := func(err error) (string, error) {
		return "", &AcquisitionError{TaskID: taskID, URL: fileURL, Err: err}
	}

	if strings.TrimSpace(taskID) == "" {
		return fail(fmt.Errorf("task id is empty"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fail(err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fail(err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(fmt.Errorf("HTTP %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 256)))
	}

	contentType := resp.Header.Get("Content-Type")
	ext := ExtensionFor(contentType)

	if err := os.MkdirAll(c.scratchDir, 0o755); err != nil {
		return fail(fmt.Errorf("create scratch dir: %w", err))
	}
	prefix := "tmp_" + unsafeNameRe.ReplaceAllString(taskID, "_") + "_"
	f, err := os.CreateTemp(c.scratchDir, prefix+"*"+ext)
	if err != nil {
		return fail(fmt.Errorf("create file: %w", err))
	}

	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(f.Name())
		if copyErr == nil {
			copyErr = closeErr
		}
		return fail(fmt.Errorf("write file: %w", copyErr))
	}

	path, err := filepath.Abs(f.Name())
	if err != nil {
		path = f.Name()
	}

	sniffed := "unknown"
	if mt, err := mimetype.DetectFile(path); err == nil {
		sniffed = mt.String()
	}
	c.logger.Info("task file acquired",
		"task_id", taskID,
		"path", path,
		"bytes", n,
		"content_type", contentType,
		"sniffed", sniffed,
	)
	return path, nil
}
