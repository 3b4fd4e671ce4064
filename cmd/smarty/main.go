// Smarty is a plan/execute/replan question-answering agent.
//
// A planner model drafts a step list, an executor model works through
// it with tools (search, fetch, code, spreadsheets, PDFs, audio,
// images, video), a replanner decides whether to continue, and a
// finalizer distills the answer to its bare form. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]); without one the built-in defaults and
// the provider API keys in the environment are used.
//
// Usage:
//
//	smarty ask [-task id] <question>      Answer one question
//	smarty batch [-out file] [source]     Answer a task list (file or "questions")
//	smarty runs [n] | runs show <id>      Inspect recorded runs
//	smarty init [dir]                     Write an example config
//	smarty version                        Print version and build information
//	smarty -o json version                Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/nugget/smarty/examples"
	"github.com/nugget/smarty/internal/agent"
	"github.com/nugget/smarty/internal/batch"
	"github.com/nugget/smarty/internal/buildinfo"
	"github.com/nugget/smarty/internal/config"
	"github.com/nugget/smarty/internal/runs"
)

// main constructs the OS-level environment (context, stdio, argv) and
// delegates to [run], keeping os.Exit and os.Args out of the
// application logic so the whole command can be driven from tests.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		cancel()
		os.Exit(1)
	}
}

// options are the global flags shared by every subcommand.
type options struct {
	configPath string
	outputFmt  string // "text" (default) or "json"
}

// run is the real entry point. Answers and reports go to stdout;
// structured logs go to stderr. Arguments are parsed by hand so run
// carries no flag-package globals and can be called from parallel
// tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var opts options
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			cmdArgs = append(cmdArgs, args[i])
		case args[i] == "-config" && i+1 < len(args):
			opts.configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			opts.configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			opts.outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			opts.outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			opts.outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if opts.outputFmt == "" {
		opts.outputFmt = "text"
	}
	if opts.outputFmt != "text" && opts.outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", opts.outputFmt)
	}

	switch command {
	case "ask":
		return runAsk(ctx, stdout, stderr, opts, cmdArgs)
	case "batch":
		return runBatch(ctx, stdout, stderr, opts, cmdArgs)
	case "runs":
		return runRuns(ctx, stdout, stderr, opts, cmdArgs)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, opts.outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.BuildInfo()
	if outputFmt == "json" {
		return writeJSON(w, info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Smarty - plan/execute/replan question answering agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: smarty [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  ask [-task id] <question>     Answer a single question")
	fmt.Fprintln(w, "  batch [-out file] [source]    Answer every task in a JSON file,")
	fmt.Fprintln(w, "                                or from the scoring service (source \"questions\")")
	fmt.Fprintln(w, "  runs [n]                      List the n most recent runs")
	fmt.Fprintln(w, "  runs show <id>                Show a run's steps and token usage")
	fmt.Fprintln(w, "  init [dir]                    Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  version                       Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/smarty/config.yaml, /etc/smarty/config.yaml")
	return nil
}

// loadConfig loads .env, then locates and parses the YAML config. With
// no explicit path and no file found, the defaults are used.
func loadConfig(explicit string) (*config.Config, string, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, "", err
	}

	cfgPath, err := config.FindConfig(explicit)
	if errors.Is(err, config.ErrNoConfig) {
		cfg := config.Default()
		return cfg, "", cfg.Validate()
	}
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// setup loads configuration and builds the logger on stderr.
func setup(stderr io.Writer, opts options) (*config.Config, *slog.Logger, error) {
	cfg, cfgPath, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := config.NewLogger(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	if cfgPath != "" {
		logger.Info("config loaded", "path", cfgPath)
	} else {
		logger.Info("no config file found, using defaults")
	}
	return cfg, logger, nil
}

// runAsk answers one question and prints the final answer.
func runAsk(ctx context.Context, stdout, stderr io.Writer, opts options, args []string) error {
	var taskID string
	var words []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-task" && i+1 < len(args):
			taskID = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-task="):
			taskID = strings.TrimPrefix(args[i], "-task=")
		default:
			words = append(words, args[i])
		}
	}
	question := strings.TrimSpace(strings.Join(words, " "))
	if question == "" {
		return fmt.Errorf("usage: smarty ask [-task id] <question>")
	}

	cfg, logger, err := setup(stderr, opts)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	answer, err := a.runner.Run(ctx, question, taskID)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if opts.outputFmt == "json" {
		return writeJSON(stdout, batch.Answer{TaskID: taskID, SubmittedAnswer: answer})
	}
	fmt.Fprintln(stdout, answer)
	return nil
}

// runBatch answers a list of tasks. The source is a JSON file of
// {task_id, question} objects, or "questions" (the default) to fetch
// the list from the scoring service.
func runBatch(ctx context.Context, stdout, stderr io.Writer, opts options, args []string) error {
	var outPath, source string
	concurrency := 0
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-out" && i+1 < len(args):
			outPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-out="):
			outPath = strings.TrimPrefix(args[i], "-out=")
		case args[i] == "-j" && i+1 < len(args):
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n < 1 {
				return fmt.Errorf("-j %q: must be a positive integer", args[i+1])
			}
			concurrency = n
			i++
		case strings.HasPrefix(args[i], "-"):
			return fmt.Errorf("unknown batch flag: %s", args[i])
		case source == "":
			source = args[i]
		default:
			return fmt.Errorf("usage: smarty batch [-out file] [-j n] [tasks.json|questions]")
		}
	}
	if source == "" {
		source = "questions"
	}

	cfg, logger, err := setup(stderr, opts)
	if err != nil {
		return err
	}
	if concurrency > 0 {
		cfg.Batch.Concurrency = concurrency
	}

	var tasks []agent.Task
	if source == "questions" {
		tasks, err = batch.NewQuestionsClient(cfg.Files.BaseURL, nil, logger).Fetch(ctx)
	} else {
		tasks, err = batch.LoadTasksFile(source, logger)
	}
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no tasks in %s", source)
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	outcomes := a.runner.RunAll(ctx, tasks)

	if outPath != "" {
		if err := batch.WriteAnswersFile(outPath, outcomes); err != nil {
			return fmt.Errorf("write answers: %w", err)
		}
		logger.Info("answers written", "path", outPath)
	}

	failed := writeOutcomes(stdout, opts.outputFmt, outcomes)
	logger.Info("batch complete",
		"tasks", len(outcomes),
		"failed", failed,
		"elapsed", time.Since(start).Round(time.Second),
	)
	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(outcomes))
	}
	return nil
}

// writeOutcomes prints batch results and returns the failure count.
func writeOutcomes(w io.Writer, outputFmt string, outcomes []batch.Outcome) int {
	failed := 0
	for _, o := range outcomes {
		if o.Failed() {
			failed++
		}
	}

	if outputFmt == "json" {
		_ = writeJSON(w, outcomes)
		return failed
	}
	for _, o := range outcomes {
		if o.Failed() {
			fmt.Fprintf(w, "%s\tAGENT ERROR: %s\n", o.TaskID, o.Error)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", o.TaskID, o.SubmittedAnswer)
	}
	fmt.Fprintf(w, "\n%d tasks, %d answered, %d failed\n", len(outcomes), len(outcomes)-failed, failed)
	return failed
}

// runRuns lists recent runs or shows one run in detail.
func runRuns(ctx context.Context, stdout, stderr io.Writer, opts options, args []string) error {
	cfg, logger, err := setup(stderr, opts)
	if err != nil {
		return err
	}
	path := cfg.RunsPath()
	if path == "" {
		return fmt.Errorf("runs: data_dir is not configured")
	}
	store, err := runs.NewStore(path, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) >= 1 && args[0] == "show" {
		if len(args) != 2 {
			return fmt.Errorf("usage: smarty runs show <id>")
		}
		return showRun(ctx, stdout, opts.outputFmt, store, args[1])
	}

	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("runs %q: count must be a positive integer", args[0])
		}
		limit = n
	}

	list, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if opts.outputFmt == "json" {
		if list == nil {
			list = []*runs.Run{}
		}
		return writeJSON(stdout, list)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTASK\tSTARTED\tITER\tANSWER")
	for _, r := range list {
		answer := r.Answer
		if r.Error != "" {
			answer = "ERROR: " + r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.TaskID, r.StartedAt.Local().Format(time.DateTime), r.Iterations, truncate(answer, 60))
	}
	return tw.Flush()
}

func showRun(ctx context.Context, w io.Writer, outputFmt string, store *runs.Store, id string) error {
	r, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	steps, err := store.Steps(ctx, id)
	if err != nil {
		return err
	}
	usage, err := store.Usage(ctx, id)
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		return writeJSON(w, struct {
			*runs.Run
			Steps []runs.Step         `json:"steps"`
			Usage []runs.UsageSummary `json:"usage"`
		}{r, steps, usage})
	}

	fmt.Fprintf(w, "Run %s (task %s)\n", r.ID, r.TaskID)
	fmt.Fprintf(w, "Question: %s\n", r.Question)
	if r.HasFile {
		fmt.Fprintf(w, "Attachment: %s\n", r.Attachment)
	}
	for _, st := range steps {
		fmt.Fprintf(w, "\n%d. %s\n   %s\n", st.Seq, st.Step, truncate(st.Result, 400))
	}
	fmt.Fprintln(w)
	if r.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", r.Error)
	} else {
		fmt.Fprintf(w, "Answer: %s\n", r.Answer)
	}
	if r.GuardTripped {
		fmt.Fprintf(w, "Iteration limit reached after %d steps\n", r.Iterations)
	}
	for _, u := range usage {
		fmt.Fprintf(w, "  %-10s %3d calls  %8d in  %8d out\n", u.Role, u.Calls, u.InputTokens, u.OutputTokens)
	}
	return nil
}

// runInit writes the example configuration into dir. An existing
// config.yaml is never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Smarty workspace in %s\n", dir)

	for _, sub := range []string{"data", "scratch"} {
		path := filepath.Join(dir, sub)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
	}

	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(w, "  - %s exists, left unchanged\n", configPath)
		return nil
	}
	// The config may hold API keys.
	if err := os.WriteFile(configPath, examples.ConfigYAML, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml or export OPENAI_API_KEY, GROQ_API_KEY and TAVILY_API_KEY.")
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
