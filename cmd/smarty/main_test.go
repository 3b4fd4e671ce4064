package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/nugget/smarty/internal/agent"
	"github.com/nugget/smarty/internal/batch"
	"github.com/nugget/smarty/internal/config"
	"github.com/nugget/smarty/internal/runs"
)

// writeConfig writes a minimal config into a temp dir and returns its
// path. dataDir may be empty.
func writeConfig(t *testing.T, dataDir string) string {
	t.Helper()
	dir := t.TempDir()
	body := "log_level: warn\nscratch_dir: " + filepath.Join(dir, "scratch") + "\n"
	if dataDir != "" {
		body += "data_dir: " + dataDir + "\n"
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, io.Discard, []string{"version"}); err != nil {
		t.Fatalf("run version: %v", err)
	}
	if !strings.HasPrefix(out.String(), "Smarty ") {
		t.Errorf("version output = %q", out.String())
	}
	if !strings.Contains(out.String(), "go_version:") {
		t.Errorf("version output missing go_version: %q", out.String())
	}
}

func TestRun_VersionJSON(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, io.Discard, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run -o json version: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, out.String())
	}
	if info["version"] == "" {
		t.Errorf("version missing from %v", info)
	}
}

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"--help"}} {
		var out bytes.Buffer
		if err := run(context.Background(), &out, io.Discard, args); err != nil {
			t.Fatalf("run %v: %v", args, err)
		}
		if !strings.Contains(out.String(), "Usage: smarty") {
			t.Errorf("run %v output = %q", args, out.String())
		}
	}
}

func TestRun_Errors(t *testing.T) {
	noData := writeConfig(t, "")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown command", []string{"serve"}, "unknown command: serve"},
		{"unknown flag", []string{"-x", "version"}, "unknown flag: -x"},
		{"bad output format", []string{"-o", "yaml", "version"}, "unknown output format"},
		{"ask without question", []string{"ask"}, "usage: smarty ask"},
		{"ask with only a task id", []string{"ask", "-task", "abc"}, "usage: smarty ask"},
		{"missing config", []string{"-config", "/nonexistent/smarty.yaml", "runs"}, "config file not found"},
		{"runs without data dir", []string{"-config", noData, "runs"}, "data_dir is not configured"},
		{"batch bad flag", []string{"-config", noData, "batch", "-z"}, "unknown batch flag"},
		{"batch bad concurrency", []string{"-config", noData, "batch", "-j", "0"}, "positive integer"},
		{"batch missing file", []string{"-config", noData, "batch", "/nonexistent/tasks.json"}, "no such file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(context.Background(), io.Discard, io.Discard, tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("run(%v) = %v, want error containing %q", tt.args, err, tt.wantErr)
			}
		})
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("batch:\n  concurrency: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	err := run(context.Background(), io.Discard, io.Discard, []string{"-config", path, "runs"})
	if err == nil || !strings.Contains(err.Error(), "batch.concurrency") {
		t.Errorf("run = %v, want a validation error", err)
	}
}

func TestRunRuns(t *testing.T) {
	dataDir := t.TempDir()
	cfgPath := writeConfig(t, dataDir)

	store, err := runs.NewStore(filepath.Join(dataDir, "runs.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	id, err := store.Start(ctx, agent.Task{ID: "task-1", Question: "How many apples?"})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.RecordStep(ctx, id, 1, agent.PastStep{Step: "add 3 and 5", Result: "8"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Finish(ctx, id, &agent.Result{Answer: "8", Iterations: 1}, nil); err != nil {
		t.Fatal(err)
	}
	failed, err := store.Start(ctx, agent.Task{ID: "task-2", Question: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Finish(ctx, failed, nil, errors.New("planner failed")); err != nil {
		t.Fatal(err)
	}
	store.Close()

	t.Run("list", func(t *testing.T) {
		var out bytes.Buffer
		if err := run(ctx, &out, io.Discard, []string{"-config", cfgPath, "runs"}); err != nil {
			t.Fatalf("runs: %v", err)
		}
		for _, want := range []string{"task-1", "task-2", "ERROR: planner failed"} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("runs output missing %q:\n%s", want, out.String())
			}
		}
	})

	t.Run("list json", func(t *testing.T) {
		var out bytes.Buffer
		if err := run(ctx, &out, io.Discard, []string{"-config", cfgPath, "-o", "json", "runs", "1"}); err != nil {
			t.Fatalf("runs: %v", err)
		}
		var list []runs.Run
		if err := json.Unmarshal(out.Bytes(), &list); err != nil {
			t.Fatalf("unmarshal: %v\n%s", err, out.String())
		}
		if len(list) != 1 || list[0].TaskID != "task-2" {
			t.Errorf("runs 1 = %+v, want the newest run", list)
		}
	})

	t.Run("show", func(t *testing.T) {
		var out bytes.Buffer
		if err := run(ctx, &out, io.Discard, []string{"-config", cfgPath, "runs", "show", id}); err != nil {
			t.Fatalf("runs show: %v", err)
		}
		for _, want := range []string{"How many apples?", "1. add 3 and 5", "Answer: 8"} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("show output missing %q:\n%s", want, out.String())
			}
		}
	})

	t.Run("show unknown", func(t *testing.T) {
		err := run(ctx, io.Discard, io.Discard, []string{"-config", cfgPath, "runs", "show", "nope"})
		if !errors.Is(err, runs.ErrNotFound) {
			t.Errorf("runs show nope = %v, want ErrNotFound", err)
		}
	})

	t.Run("bad count", func(t *testing.T) {
		err := run(ctx, io.Discard, io.Discard, []string{"-config", cfgPath, "runs", "many"})
		if err == nil {
			t.Error("runs many should fail")
		}
	})
}

func TestRunInit(t *testing.T) {
	old := syscall.Umask(0)
	t.Cleanup(func() { syscall.Umask(old) })

	dir := t.TempDir()
	var out bytes.Buffer
	if err := run(context.Background(), &out, io.Discard, []string{"init", dir}); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, sub := range []string{"data", "scratch"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s: %v", sub, err)
		}
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	info, err := os.Stat(cfgPath)
	if err != nil {
		t.Fatalf("config.yaml not created: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("config.yaml permissions = %o, want 0600", got)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("load example config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("example config does not validate: %v", err)
	}
	if cfg.Loop.MaxIterations != 12 || cfg.Roles.Executor.Model == "" {
		t.Errorf("example config = %+v", cfg.Loop)
	}

	// A second init leaves the edited file alone.
	if err := os.WriteFile(cfgPath, []byte("log_level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := runInit(&out, dir); err != nil {
		t.Fatalf("second init: %v", err)
	}
	data, _ := os.ReadFile(cfgPath)
	if string(data) != "log_level: debug\n" {
		t.Errorf("config.yaml overwritten: %q", data)
	}
	if !strings.Contains(out.String(), "left unchanged") {
		t.Errorf("second init output = %q", out.String())
	}
}

func TestWriteOutcomes(t *testing.T) {
	outcomes := []batch.Outcome{
		{TaskID: "a", SubmittedAnswer: "8"},
		{TaskID: "b", Error: "planner: malformed plan"},
	}

	var out bytes.Buffer
	if failed := writeOutcomes(&out, "text", outcomes); failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	for _, want := range []string{"a\t8", "b\tAGENT ERROR: planner: malformed plan", "2 tasks, 1 answered, 1 failed"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	writeOutcomes(&out, "json", outcomes)
	var decoded []batch.Outcome
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded) != 2 || decoded[1].Error == "" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestNewApp_WiresTools(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "test-key")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("TAVILY_API_KEY", "")
	t.Setenv("BRAVE_API_KEY", "")

	cfg := config.Default()
	cfg.ScratchDir = t.TempDir()
	cfg.DataDir = t.TempDir()

	a, err := newApp(cfg, discardLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	if a.store == nil {
		t.Error("run store should be enabled when data_dir is set")
	}

	names := strings.Join(a.registry.Names(), ",")
	for _, want := range []string{
		"calculator", "execute_code", "read_file", "read_spreadsheet", "read_pdf",
		"inspect_file", "transcribe_audio", "wikipedia_search", "web_fetch", "query_video",
	} {
		if !strings.Contains(names, want) {
			t.Errorf("registry missing %s (have %s)", want, names)
		}
	}
	// No OpenAI key: no vision. No Tavily key: no web_search.
	for _, absent := range []string{"describe_image", "web_search"} {
		if a.registry.Get(absent) != nil {
			t.Errorf("registry should not have %s without credentials", absent)
		}
	}
}

func TestBuildSearch(t *testing.T) {
	cfg := config.Default()
	cfg.Search.Default = "brave"
	cfg.Search.Tavily.APIKey = ""
	cfg.Search.Brave.APIKey = "k"
	cfg.Search.SearXNG.URL = "http://localhost:8080"

	mgr := buildSearch(cfg)
	for _, p := range []string{"brave", "searxng", "wikipedia"} {
		if !mgr.Has(p) {
			t.Errorf("search manager missing %s", p)
		}
	}
	if mgr.Has("tavily") {
		t.Error("tavily registered without a key")
	}
	if mgr.Primary() != "brave" {
		t.Errorf("Primary = %q, want brave", mgr.Primary())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"a  b\n c", 10, "a b c"},
		{"abcdefghij", 5, "abcd…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
