package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
	"unicode/utf8"
)

// TimedOutMessage is the stderr reported when a run exceeds its
// wall-clock limit.
const TimedOutMessage = "Execution timed out."

// CodeExecutor runs program text in a subprocess with a hard timeout.
type CodeExecutor struct {
	interpreter    string
	workingDir     string
	timeout        time.Duration
	maxOutputBytes int
	logger         *slog.Logger
}

// CodeExecConfig configures the code executor.
type CodeExecConfig struct {
	// Interpreter runs the script file (default "python3").
	Interpreter    string
	WorkingDir     string
	Timeout        time.Duration
	MaxOutputBytes int
}

// DefaultCodeExecConfig returns the defaults used when nothing is
// configured.
func DefaultCodeExecConfig() CodeExecConfig {
	return CodeExecConfig{
		Interpreter:    "python3",
		Timeout:        30 * time.Second,
		MaxOutputBytes: 100 * 1024,
	}
}

// NewCodeExecutor creates a code executor.
func NewCodeExecutor(cfg CodeExecConfig, logger *slog.Logger) *CodeExecutor {
	def := DefaultCodeExecConfig()
	if cfg.Interpreter == "" {
		cfg.Interpreter = def.Interpreter
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = def.MaxOutputBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CodeExecutor{
		interpreter:    cfg.Interpreter,
		workingDir:     cfg.WorkingDir,
		timeout:        cfg.Timeout,
		maxOutputBytes: cfg.MaxOutputBytes,
		logger:         logger,
	}
}

// ExecResult is the outcome of one run. ExitCode is nil when the
// process never produced one (timeout, missing file, failed start).
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode *int   `json:"exit_code"`
}

// JSON renders the result for the model.
func (r *ExecResult) JSON() string {
	out, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("stdout:\n%s\nstderr:\n%s", r.Stdout, r.Stderr)
	}
	return string(out)
}

// Run writes code to a temporary script and executes it. Failures of
// any kind are reported in the result, never as an error.
func (x *CodeExecutor) Run(ctx context.Context, code string) *ExecResult {
	f, err := os.CreateTemp(x.workingDir, "smarty_exec_*.py")
	if err != nil {
		return &ExecResult{Stderr: fmt.Sprintf("create script: %v", err)}
	}
	path := f.Name()
	defer os.Remove(path)

	_, werr := f.WriteString(code)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		return &ExecResult{Stderr: fmt.Sprintf("write script: %v", errors.Join(werr, cerr))}
	}

	return x.runScript(ctx, path)
}

// RunFile executes an existing script file.
func (x *CodeExecutor) RunFile(ctx context.Context, path string) *ExecResult {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return &ExecResult{Stderr: fmt.Sprintf("File not found: %s", path)}
	}
	return x.runScript(ctx, path)
}

func (x *CodeExecutor) runScript(ctx context.Context, path string) *ExecResult {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, x.interpreter, path)
	if x.workingDir != "" {
		cmd.Dir = x.workingDir
	}
	// Children holding the pipes open must not outlive the deadline.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		x.logger.Warn("code execution timed out",
			"interpreter", x.interpreter,
			"timeout", x.timeout,
		)
		return &ExecResult{Stdout: "", Stderr: TimedOutMessage}
	}

	result := &ExecResult{
		Stdout: truncateOutput(stdout.String(), x.maxOutputBytes),
		Stderr: truncateOutput(stderr.String(), x.maxOutputBytes),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		code := 0
		result.ExitCode = &code
	case errors.As(err, &exitErr) && exitErr.ExitCode() >= 0:
		code := exitErr.ExitCode()
		result.ExitCode = &code
	default:
		if result.Stderr != "" {
			result.Stderr += "\n"
		}
		result.Stderr += err.Error()
	}

	x.logger.Debug("code execution complete",
		"interpreter", x.interpreter,
		"exit_code", result.ExitCode,
		"stdout_len", len(result.Stdout),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return result
}

// truncateOutput truncates output to at most maxBytes without splitting
// a UTF-8 sequence, adding a note if truncated.
func truncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n\n[... output truncated ...]"
}

// SetCodeExecutor adds the execute_code tool to the registry.
func (r *Registry) SetCodeExecutor(x *CodeExecutor) {
	if x == nil {
		return
	}

	r.Register(&Tool{
		Name: "execute_code",
		Description: "Execute Python code and return its stdout, stderr and exit code as JSON. " +
			"Pass either the source in `code` or the path of an existing .py file in `file_path`. " +
			"Print the values you need; only printed output is returned. Runs are killed after a hard timeout.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Python source to run",
				},
				"file_path": map[string]any{
					"type":        "string",
					"description": "Path of a Python file to run instead of code",
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			if path := stringArg(args, "file_path"); path != "" {
				return x.RunFile(ctx, path).JSON(), nil
			}
			code, _ := args["code"].(string)
			if code == "" {
				return "", fmt.Errorf("code or file_path is required")
			}
			return x.Run(ctx, code).JSON(), nil
		},
	})
}
