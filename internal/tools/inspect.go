package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultPreviewChars bounds the text preview returned by inspect_file.
const DefaultPreviewChars = 4000

// FileInfo describes a local file for the model.
type FileInfo struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	MIMEType  string `json:"mime_type"`
	Extension string `json:"extension"`
	// Hint names the tool best suited to read the file.
	Hint    string `json:"hint,omitempty"`
	Preview string `json:"preview,omitempty"`
}

// InspectFile detects the content type of path and, for text files,
// includes up to previewChars characters of content.
func InspectFile(path string, previewChars int) (*FileInfo, error) {
	if previewChars <= 0 {
		previewChars = DefaultPreviewChars
	}

	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect type: %w", err)
	}

	info := &FileInfo{
		Path:      path,
		SizeBytes: st.Size(),
		MIMEType:  mt.String(),
		Extension: mt.Extension(),
		Hint:      toolHint(mt, filepath.Ext(path)),
	}

	if isText(mt) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		info.Preview = truncateRunes(string(data), previewChars)
	}
	return info, nil
}

func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func toolHint(mt *mimetype.MIME, ext string) string {
	switch {
	case mt.Is("application/pdf"):
		return "read_pdf"
	case mt.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"), mt.Is("text/csv"):
		return "read_spreadsheet"
	case strings.HasPrefix(mt.String(), "image/"):
		return "describe_image"
	case strings.HasPrefix(mt.String(), "audio/"):
		return "transcribe_audio"
	case strings.EqualFold(ext, ".py"):
		return "execute_code"
	}
	return ""
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "\n[... truncated ...]"
}

func (r *Registry) registerInspectTools() {
	r.Register(&Tool{
		Name: "inspect_file",
		Description: "Identify a local file by its content: size, MIME type, the tool best suited to read it, " +
			"and a preview of the contents for text files (source code, json, txt).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "Local path of the file",
				},
				"max_chars": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("Maximum preview characters (default %d)", DefaultPreviewChars),
				},
			},
			"required": []string{"file_path"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "file_path")
			if path == "" {
				return "", fmt.Errorf("file_path is required")
			}
			info, err := InspectFile(path, intArg(args, "max_chars", 0))
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(info)
			if err != nil {
				return fmt.Sprintf("%s: %s, %d bytes", info.Path, info.MIMEType, info.SizeBytes), nil
			}
			return string(out), nil
		},
	})
}
