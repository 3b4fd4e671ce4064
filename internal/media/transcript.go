package media

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// transcriptMeta is the YAML frontmatter of a saved transcript.
type transcriptMeta struct {
	Title     string `yaml:"title"`
	Channel   string `yaml:"channel,omitempty"`
	Origin    string `yaml:"origin"`
	Source    string `yaml:"source"`
	Method    string `yaml:"method,omitempty"`
	Date      string `yaml:"date,omitempty"`
	Duration  string `yaml:"duration,omitempty"`
	Truncated bool   `yaml:"truncated,omitempty"`
	FetchedAt string `yaml:"fetched_at"`
}

// saveTranscript writes r as markdown with YAML frontmatter under the
// transcript directory and returns the file path. The name is derived
// from source and id, so fetching the same video again overwrites it.
func (c *Client) saveTranscript(r *Result, origin string) (string, error) {
	dir := expandHome(c.cfg.TranscriptDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}

	front, err := yaml.Marshal(transcriptMeta{
		Title:     r.Title,
		Channel:   r.Channel,
		Origin:    origin,
		Source:    r.Source,
		Method:    r.Method,
		Date:      r.UploadDate,
		Duration:  r.Duration,
		Truncated: r.Truncated,
		FetchedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("encode transcript frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(front)
	buf.WriteString("---\n\n")
	buf.WriteString(r.Transcript)
	buf.WriteByte('\n')

	path := filepath.Join(dir, sanitizeFilename(r.Source+"-"+r.ID)+".md")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}

func expandHome(dir string) string {
	if !strings.HasPrefix(dir, "~/") {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return dir
	}
	return filepath.Join(home, dir[2:])
}
