package acquire

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"application/pdf", ".pdf"},
		{"image/png", ".png"},
		{"IMAGE/JPEG", ".jpg"},
		{"audio/mpeg", ".mp3"},
		{"text/csv; charset=utf-8", ".csv"},
		{"text/x-python; charset=utf-8", ""},
		{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ".xlsx"},
		{"application/vnd.ms-excel", ".xls"},
		{"application/x-zip-compressed", ".zip"},
		{"application/octet-stream", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			if got := ExtensionFor(tt.contentType); got != tt.want {
				t.Errorf("ExtensionFor(%q) = %q, want %q", tt.contentType, got, tt.want)
			}
		})
	}
}

func TestAcquire(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Write([]byte("item,sales\nburger,10\n"))
	}))
	defer ts.Close()

	dir := t.TempDir()
	c := New(Config{BaseURL: ts.URL + "/", ScratchDir: dir}, nil)

	path, err := c.Acquire(context.Background(), "7bd855d8-463d")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if gotPath != "/files/7bd855d8-463d" {
		t.Errorf("request path = %q", gotPath)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("path %q is not absolute", path)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("path %q not in scratch dir %q", path, dir)
	}
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "tmp_7bd855d8-463d_") || filepath.Ext(base) != ".csv" {
		t.Errorf("file name = %q", base)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "item,sales\nburger,10\n" {
		t.Errorf("content = %q", data)
	}
}

func TestAcquire_UniqueNames(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4\n"))
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL, ScratchDir: t.TempDir()}, nil)
	a, err := c.Acquire(context.Background(), "task")
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Acquire(context.Background(), "task")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Errorf("two acquisitions share path %q", a)
	}
}

func TestAcquire_UnknownTypeHasNoExtension(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("print('hi')\n"))
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL, ScratchDir: t.TempDir()}, nil)
	path, err := c.Acquire(context.Background(), "../odd id")
	if err != nil {
		t.Fatal(err)
	}
	base := filepath.Base(path)
	if filepath.Ext(base) != "" {
		t.Errorf("unexpected extension in %q", base)
	}
	if !strings.HasPrefix(base, "tmp____odd_id_") {
		t.Errorf("task id not sanitized: %q", base)
	}
}

func TestAcquire_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "No file path associated with task_id", http.StatusNotFound)
	}))
	defer ts.Close()

	dir := t.TempDir()
	c := New(Config{BaseURL: ts.URL, ScratchDir: dir}, nil)
	_, err := c.Acquire(context.Background(), "missing")

	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) {
		t.Fatalf("err = %v, want *AcquisitionError", err)
	}
	if acqErr.TaskID != "missing" || !strings.HasSuffix(acqErr.URL, "/files/missing") {
		t.Errorf("error fields = %+v", acqErr)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error %q should carry status", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("failed acquisition left %d files behind", len(entries))
	}
}

func TestAcquire_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	c := New(Config{BaseURL: url, ScratchDir: t.TempDir(), Client: &http.Client{}}, nil)
	_, err := c.Acquire(context.Background(), "x")

	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) {
		t.Fatalf("err = %v, want *AcquisitionError", err)
	}
}

func TestAcquire_EmptyTaskID(t *testing.T) {
	c := New(Config{ScratchDir: t.TempDir()}, nil)
	_, err := c.Acquire(context.Background(), " ")
	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) {
		t.Fatalf("err = %v, want *AcquisitionError", err)
	}
}
