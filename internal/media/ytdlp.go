package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
)

const ytdlpStderrLimit = 500

// videoInfo is the part of yt-dlp's --print-json document we use.
type videoInfo struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Channel     string  `json:"channel"`
	Uploader    string  `json:"uploader"`
	Duration    float64 `json:"duration"`
	UploadDate  string  `json:"upload_date"`
	Description string  `json:"description"`
}

// fetchSubtitles asks yt-dlp for manual and automatic subtitles in
// language without downloading the video itself.
func (c *Client) fetchSubtitles(ctx context.Context, rawURL, language, dir string) (*videoInfo, error) {
	return c.ytdlp(ctx, rawURL,
		"--skip-download",
		"--write-sub",
		"--write-auto-sub",
		"--sub-lang", language,
		"--sub-format", "vtt/srt/best",
		"-o", filepath.Join(dir, "%(id)s"),
	)
}

// transcribeAudio downloads the best audio track into dir and hands it
// to the speech-to-text backend.
func (c *Client) transcribeAudio(ctx context.Context, rawURL, dir string) (string, error) {
	if c.cfg.Transcribe == nil {
		return "", fmt.Errorf("speech-to-text is not configured")
	}
	if _, err := c.ytdlp(ctx, rawURL,
		"-f", "bestaudio[ext=m4a]/bestaudio",
		"-o", filepath.Join(dir, "audio.%(ext)s"),
	); err != nil {
		return "", err
	}
	audio, _ := filepath.Glob(filepath.Join(dir, "audio.*"))
	if len(audio) == 0 {
		return "", fmt.Errorf("yt-dlp produced no audio file")
	}
	return c.cfg.Transcribe(ctx, audio[0])
}

// ytdlp runs yt-dlp against rawURL with extra flags and decodes the
// metadata it prints.
func (c *Client) ytdlp(ctx context.Context, rawURL string, flags ...string) (*videoInfo, error) {
	args := make([]string, 0, len(flags)+5)
	if c.cfg.CookiesFile != "" {
		args = append(args, "--cookies", c.cfg.CookiesFile)
	}
	args = append(args, flags...)
	args = append(args, "--print-json", "--no-warnings", rawURL)

	c.logger.Info("running yt-dlp", "url", rawURL)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.cfg.YtDlpPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, clip(stderr.String(), ytdlpStderrLimit))
	}

	var info videoInfo
	if err := json.Unmarshal(firstLine(stdout.Bytes()), &info); err != nil {
		return nil, fmt.Errorf("parse yt-dlp output: %w", err)
	}
	return &info, nil
}

// firstLine returns the first JSON document yt-dlp printed; playlists
// print one per entry.
func firstLine(b []byte) []byte {
	b = bytes.TrimSpace(b)
	line, _, _ := bytes.Cut(b, []byte{'\n'})
	return line
}
