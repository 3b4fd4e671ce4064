package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxReadBytes bounds read_file output.
const maxReadBytes = 50 * 1024

// FileTools reads and writes text files inside the scratch directory,
// where acquired attachments live.
type FileTools struct {
	workspace string
}

// NewFileTools creates FileTools rooted at workspace. An empty
// workspace disables the tools.
func NewFileTools(workspace string) *FileTools {
	return &FileTools{workspace: workspace}
}

// Enabled reports whether a workspace is configured.
func (ft *FileTools) Enabled() bool {
	return ft.workspace != ""
}

// resolvePath converts path to an absolute path inside the workspace.
// Relative paths are taken from the workspace root.
func (ft *FileTools) resolvePath(path string) (string, error) {
	if ft.workspace == "" {
		return "", errors.New("workspace not configured")
	}
	root, err := filepath.Abs(ft.workspace)
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}

	abs := filepath.Clean(path)
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return abs, nil
}

// Read returns the contents of a file. offset (1-based) and limit
// select a line range when positive.
func (ft *FileTools) Read(path string, offset, limit int) (string, error) {
	abs, err := ft.resolvePath(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("read file: %w", err)
	}
	content := string(data)

	if offset > 0 || limit > 0 {
		lines := strings.Split(content, "\n")
		start := 0
		if offset > 0 {
			start = offset - 1
		}
		if start >= len(lines) {
			return "", fmt.Errorf("offset %d exceeds file length (%d lines)", offset, len(lines))
		}
		end := len(lines)
		if limit > 0 && start+limit < end {
			end = start + limit
		}
		content = strings.Join(lines[start:end], "\n")
		if start > 0 || end < len(lines) {
			content = fmt.Sprintf("[Lines %d-%d of %d]\n%s", start+1, end, len(lines), content)
		}
	}

	if len(content) > maxReadBytes {
		content = content[:maxReadBytes] + "\n\n[... truncated, use offset/limit for more ...]"
	}
	return content, nil
}

// Write writes content to a file, creating parent directories. It
// returns the absolute path written.
func (ft *FileTools) Write(path, content string) (string, error) {
	abs, err := ft.resolvePath(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return abs, nil
}

// List lists the entries of a directory; directories get a trailing
// slash.
func (ft *FileTools) List(path string) ([]string, error) {
	abs, err := ft.resolvePath(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory not found: %s", path)
		}
		return nil, fmt.Errorf("read directory: %w", err)
	}

	result := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		result = append(result, name)
	}
	return result, nil
}

// SetFileTools adds read_file, write_file and list_files.
func (r *Registry) SetFileTools(ft *FileTools) {
	if ft == nil || !ft.Enabled() {
		return
	}

	r.Register(&Tool{
		Name:        "read_file",
		Description: "Read a text file (source code, txt, json, markdown) from the working directory. Use offset and limit to page through long files.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "Path of the file, absolute or relative to the working directory",
				},
				"offset": map[string]any{
					"type":        "integer",
					"description": "First line to return (1-based)",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of lines to return",
				},
			},
			"required": []string{"file_path"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "file_path")
			if path == "" {
				return "", fmt.Errorf("file_path is required")
			}
			return ft.Read(path, intArg(args, "offset", 0), intArg(args, "limit", 0))
		},
	})

	r.Register(&Tool{
		Name:        "write_file",
		Description: "Write a text file in the working directory, for example a Python script to run with execute_code. Returns the absolute path.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "Path of the file, relative to the working directory",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Full file content",
				},
			},
			"required": []string{"file_path", "content"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "file_path")
			if path == "" {
				return "", fmt.Errorf("file_path is required")
			}
			content, _ := args["content"].(string)
			abs, err := ft.Write(path, content)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Wrote %d bytes to %s", len(content), abs), nil
		},
	})

	r.Register(&Tool{
		Name:        "list_files",
		Description: "List the files in a directory of the working directory.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Directory to list (default: the working directory)",
				},
			},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "path")
			if path == "" {
				path = "."
			}
			names, err := ft.List(path)
			if err != nil {
				return "", err
			}
			if len(names) == 0 {
				return "(empty directory)", nil
			}
			return strings.Join(names, "\n"), nil
		},
	})
}
