package tools

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/nugget/smarty/internal/prompts"
)

// newOpenAIClient builds a go-openai client for an OpenAI-compatible
// endpoint (OpenAI itself, Groq, or a local server).
func newOpenAIClient(baseURL, apiKey string, httpClient *http.Client) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(cfg)
}

// Transcriber converts speech to text with a Whisper-compatible
// transcription endpoint.
type Transcriber struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewTranscriber creates a Transcriber. httpClient may be nil.
func NewTranscriber(baseURL, apiKey, model string, httpClient *http.Client, logger *slog.Logger) *Transcriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{
		client: newOpenAIClient(baseURL, apiKey, httpClient),
		model:  model,
		logger: logger,
	}
}

// Transcribe returns the text spoken in the audio (or video) file.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: path,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", filepath.Base(path), err)
	}

	t.logger.Debug("audio transcribed",
		"file", filepath.Base(path),
		"model", t.model,
		"chars", len(resp.Text),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return strings.TrimSpace(resp.Text), nil
}

// ImageDescriber answers questions about images with a vision model.
type ImageDescriber struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewImageDescriber creates an ImageDescriber. httpClient may be nil.
func NewImageDescriber(baseURL, apiKey, model string, httpClient *http.Client, logger *slog.Logger) *ImageDescriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageDescriber{
		client: newOpenAIClient(baseURL, apiKey, httpClient),
		model:  model,
		logger: logger,
	}
}

// Describe sends the image at path to the vision model, inlined as a
// data URL, along with the description instruction and the optional
// question.
func (d *ImageDescriber) Describe(ctx context.Context, path, question string) (string, error) {
	dataURL, err := imageDataURL(path)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompts.ImageQuestion(question)},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("describe %s: %w", filepath.Base(path), err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("vision model returned no choices")
	}

	d.logger.Debug("image described",
		"file", filepath.Base(path),
		"model", d.model,
		"input_tokens", resp.Usage.PromptTokens,
		"output_tokens", resp.Usage.CompletionTokens,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// imageDataURL reads an image and encodes it as a data URL. The MIME
// type comes from the content, since acquired files may lack an
// extension.
func imageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%s is %s, not an image", filepath.Base(path), mt.String())
	}
	return "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// SetTranscriber adds the transcribe_audio tool to the registry.
func (r *Registry) SetTranscriber(t *Transcriber) {
	if t == nil {
		return
	}

	r.Register(&Tool{
		Name:        "transcribe_audio",
		Description: "Transcribe the speech in a local audio file (mp3, wav, ogg, m4a) or video file to text.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "Local path of the audio file",
				},
			},
			"required": []string{"file_path"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "file_path")
			if path == "" {
				return "", fmt.Errorf("file_path is required")
			}
			return t.Transcribe(ctx, path)
		},
	})
}

// SetImageDescriber adds the describe_image tool to the registry.
func (r *Registry) SetImageDescriber(d *ImageDescriber) {
	if d == nil {
		return
	}

	r.Register(&Tool{
		Name: "describe_image",
		Description: "Describe a local image file in detail with a vision model. For board games the current " +
			"position is read out without analysis. Optionally ask a specific question about the image.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "Local path of the image",
				},
				"question": map[string]any{
					"type":        "string",
					"description": "Optional question to answer about the image",
				},
			},
			"required": []string{"file_path"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "file_path")
			if path == "" {
				return "", fmt.Errorf("file_path is required")
			}
			return d.Describe(ctx, path, stringArg(args, "question"))
		},
	})
}
