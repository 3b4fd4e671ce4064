package tools

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var tinyPNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestTranscriber(t *testing.T) {
	var gotModel, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			t.Fatal(err)
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatal(err)
			}
			body, _ := io.ReadAll(part)
			switch part.FormName() {
			case "model":
				gotModel = string(body)
			case "file":
				gotFile = part.FileName()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text": " cornstarch, granulated sugar, ripe strawberries "}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "recipe.mp3")
	if err := os.WriteFile(path, []byte("ID3fake"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := NewTranscriber(srv.URL, "test-key", "whisper-large-v3-turbo", srv.Client(), nil)
	text, err := tr.Transcribe(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if text != "cornstarch, granulated sugar, ripe strawberries" {
		t.Errorf("text = %q", text)
	}
	if gotModel != "whisper-large-v3-turbo" || gotFile != "recipe.mp3" {
		t.Errorf("model = %q file = %q", gotModel, gotFile)
	}

	if _, err := tr.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.mp3")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestImageDescriber(t *testing.T) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type     string `json:"type"`
				Text     string `json:"text"`
				ImageURL struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "A chess board. White king on g1."}}], "usage": {"prompt_tokens": 900, "completion_tokens": 12}}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "board")
	if err := os.WriteFile(path, tinyPNG, 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewImageDescriber(srv.URL, "k", "gpt-4.1-2025-04-14", srv.Client(), nil)
	got, err := d.Describe(context.Background(), path, "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "A chess board. White king on g1." {
		t.Errorf("Describe = %q", got)
	}

	if req.Model != "gpt-4.1-2025-04-14" || len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 {
		t.Fatalf("request = %+v", req)
	}
	parts := req.Messages[0].Content
	if !strings.HasPrefix(parts[0].Text, "What's in this image?") {
		t.Errorf("text part = %q", parts[0].Text)
	}
	if !strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,") {
		t.Errorf("image url = %.40s", parts[1].ImageURL.URL)
	}
}

func TestImageDataURL_RejectsNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.png")
	if err := os.WriteFile(path, []byte("just text"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := imageDataURL(path); err == nil {
		t.Error("expected error for non-image content")
	}
}

func TestOpenAIToolsRegistration(t *testing.T) {
	r := NewRegistry(nil)
	r.SetTranscriber(nil)
	r.SetImageDescriber(nil)
	if r.Get("transcribe_audio") != nil || r.Get("describe_image") != nil {
		t.Fatal("nil services must not register tools")
	}

	r.SetTranscriber(NewTranscriber("http://127.0.0.1:1", "k", "m", nil, nil))
	r.SetImageDescriber(NewImageDescriber("http://127.0.0.1:1", "k", "m", nil, nil))
	for _, name := range []string{"transcribe_audio", "describe_image"} {
		if r.Get(name) == nil {
			t.Errorf("%s not registered", name)
		}
	}
}
