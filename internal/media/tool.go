package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ToolHandler returns a function compatible with the tools.Tool Handler
// signature. Given a question it answers from the transcript; without
// one it returns the transcript itself.
func ToolHandler(c *Client) func(ctx context.Context, args map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		rawURL, _ := args["url"].(string)
		filePath, _ := args["file_path"].(string)
		question, _ := args["question"].(string)
		language, _ := args["language"].(string)

		var (
			result *Result
			err    error
		)
		switch {
		case strings.TrimSpace(filePath) != "":
			result, err = c.TranscribeFile(ctx, strings.TrimSpace(filePath))
		case strings.TrimSpace(rawURL) != "":
			result, err = c.GetTranscript(ctx, rawURL, language)
		default:
			return "", fmt.Errorf("query_video: url or file_path is required")
		}
		if err != nil {
			return "", err
		}

		if strings.TrimSpace(question) == "" {
			out, err := json.Marshal(result)
			if err != nil {
				return fmt.Sprintf("Title: %s\n\n%s", result.Title, result.Transcript), nil
			}
			return string(out), nil
		}

		answer, err := c.Answer(ctx, result, question)
		if err != nil {
			return "", fmt.Errorf("query_video: %w", err)
		}
		out := fmt.Sprintf("Video: %s\nAnswer: %s", firstNonEmpty(result.Title, result.ID), strings.TrimSpace(answer))
		if result.TranscriptPath != "" {
			out += "\nFull transcript saved to: " + result.TranscriptPath
		}
		return out, nil
	}
}

// ToolDefinition returns the JSON Schema parameters for the query_video tool.
func ToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Video URL (YouTube, Vimeo, or any yt-dlp-supported source).",
			},
			"file_path": map[string]any{
				"type":        "string",
				"description": "Local audio or video file to transcribe instead of a URL.",
			},
			"question": map[string]any{
				"type":        "string",
				"description": "Question to answer from what is said in the video. Omit to get the raw transcript.",
			},
			"language": map[string]any{
				"type":        "string",
				"description": "Subtitle language code (default: \"en\").",
			},
		},
	}
}
