// Package media turns videos into transcripts and answers questions
// about them. Subtitles come from yt-dlp; when a video has none, its
// audio track is extracted and sent to the speech-to-text backend.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Transcript methods recorded in Result.Method.
const (
	MethodSubtitles    = "subtitles"
	MethodSpeechToText = "speech_to_text"
)

const (
	defaultSubtitleLanguage   = "en"
	defaultMaxTranscriptChars = 200000
	maxDescriptionChars       = 500
)

// TranscribeFunc converts a local audio or video file to text. The
// caller wires it to the Whisper-compatible transcription client.
type TranscribeFunc func(ctx context.Context, path string) (string, error)

// Config holds settings for the media client.
type Config struct {
	// YtDlpPath is the yt-dlp binary. Empty means look it up on PATH.
	YtDlpPath string

	// CookiesFile is an optional Netscape cookie jar passed to yt-dlp.
	CookiesFile string

	// SubtitleLanguage is the preferred subtitle language (default "en").
	SubtitleLanguage string

	// MaxTranscriptChars caps Result.Transcript (default 200000).
	MaxTranscriptChars int

	// TranscriptDir, when set, receives a markdown copy of every
	// transcript so file tools can re-read it later.
	TranscriptDir string

	// Transcribe is the fallback for videos without subtitles and for
	// local files. Nil disables both.
	Transcribe TranscribeFunc

	// Complete sends a prompt to the answering model. Required by Answer.
	Complete CompleteFunc
}

// Client retrieves and cleans media transcripts.
type Client struct {
	cfg    Config
	logger *slog.Logger
}

// Result is a transcript plus whatever metadata the source exposed.
type Result struct {
	Title          string `json:"title"`
	Channel        string `json:"channel,omitempty"`
	Duration       string `json:"duration,omitempty"`
	UploadDate     string `json:"upload_date,omitempty"`
	Description    string `json:"description,omitempty"`
	Transcript     string `json:"transcript"`
	Source         string `json:"source"`
	ID             string `json:"id"`
	TranscriptPath string `json:"transcript_path,omitempty"`
	Method         string `json:"method"`
	Truncated      bool   `json:"truncated,omitempty"`
}

// New creates a media client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.SubtitleLanguage == "" {
		cfg.SubtitleLanguage = defaultSubtitleLanguage
	}
	if cfg.MaxTranscriptChars <= 0 {
		cfg.MaxTranscriptChars = defaultMaxTranscriptChars
	}
	if cfg.YtDlpPath == "" {
		cfg.YtDlpPath, _ = exec.LookPath("yt-dlp")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger}
}

// GetTranscript fetches the transcript for a video URL. Published
// subtitles are preferred over auto-generated ones; without either the
// audio is downloaded and transcribed.
func (c *Client) GetTranscript(ctx context.Context, rawURL, language string) (*Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	switch {
	case rawURL == "":
		return nil, fmt.Errorf("query_video: url is required")
	case c.cfg.YtDlpPath == "":
		return nil, fmt.Errorf("query_video: yt-dlp not found (install yt-dlp or set media.yt_dlp_path)")
	}
	if language == "" {
		language = c.cfg.SubtitleLanguage
	}

	work, err := os.MkdirTemp("", "smarty-media-*")
	if err != nil {
		return nil, fmt.Errorf("query_video: create temp dir: %w", err)
	}
	defer os.RemoveAll(work)

	info, err := c.fetchSubtitles(ctx, rawURL, language, work)
	if err != nil {
		return nil, fmt.Errorf("query_video: yt-dlp: %w", err)
	}

	method := MethodSubtitles
	text, err := readSubtitles(work, info.ID)
	if err != nil {
		c.logger.Warn("no usable subtitles, transcribing audio", "url", rawURL, "error", err)
		if text, err = c.transcribeAudio(ctx, rawURL, work); err != nil {
			return nil, fmt.Errorf("query_video: no subtitles for %q and audio fallback failed: %w", rawURL, err)
		}
		method = MethodSpeechToText
	}

	ref := identifyVideo(rawURL)
	if ref.ID == "" {
		ref.ID = info.ID
	}

	r := &Result{
		Title:       info.Title,
		Channel:     firstNonEmpty(info.Channel, info.Uploader),
		Duration:    formatDuration(info.Duration),
		UploadDate:  formatDate(info.UploadDate),
		Description: clip(info.Description, maxDescriptionChars),
		Source:      ref.Platform,
		ID:          ref.ID,
		Method:      method,
	}
	c.finish(r, text, rawURL)
	return r, nil
}

// TranscribeFile transcribes a local audio or video file, typically a
// task attachment.
func (c *Client) TranscribeFile(ctx context.Context, path string) (*Result, error) {
	if c.cfg.Transcribe == nil {
		return nil, fmt.Errorf("query_video: speech-to-text is not configured")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("query_video: %w", err)
	}
	name := filepath.Base(path)
	text, err := c.cfg.Transcribe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("query_video: transcribe %s: %w", name, err)
	}
	r := &Result{
		Title:  strings.TrimSuffix(name, filepath.Ext(name)),
		Source: "file",
		ID:     name,
		Method: MethodSpeechToText,
	}
	c.finish(r, text, path)
	return r, nil
}

// finish stores the (possibly clipped) transcript on r and writes the
// markdown copy when a transcript directory is configured.
func (c *Client) finish(r *Result, transcript, origin string) {
	if len(transcript) > c.cfg.MaxTranscriptChars {
		transcript = transcript[:c.cfg.MaxTranscriptChars]
		r.Truncated = true
	}
	r.Transcript = transcript

	if c.cfg.TranscriptDir == "" {
		return
	}
	path, err := c.saveTranscript(r, origin)
	if err != nil {
		c.logger.Warn("transcript not saved", "origin", origin, "error", err)
		return
	}
	r.TranscriptPath = path
}

// readSubtitles loads the first subtitle file yt-dlp left in dir and
// reduces it to paragraph text.
func readSubtitles(dir, videoID string) (string, error) {
	var found []string
	for _, pattern := range []string{"*.vtt", "*.srt"} {
		m, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return "", err
		}
		found = append(found, m...)
	}
	if len(found) == 0 {
		return "", fmt.Errorf("no subtitle files found for %s", videoID)
	}

	raw, err := os.ReadFile(found[0])
	if err != nil {
		return "", fmt.Errorf("read subtitle file: %w", err)
	}
	text := SubtitleParagraphs(string(raw))
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("subtitle file empty after cleaning")
	}
	return text, nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
