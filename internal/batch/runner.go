// Package batch runs agent tasks one at a time or in bulk and writes
// their answers in the scoring service's submission shape.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nugget/smarty/internal/agent"
	"github.com/nugget/smarty/internal/runs"
)

// TaskRunner executes one task to completion. *agent.Loop satisfies it.
type TaskRunner interface {
	Run(ctx context.Context, task agent.Task) (*agent.Result, error)
}

// Recorder persists run records. *runs.Store satisfies it.
type Recorder interface {
	Start(ctx context.Context, task agent.Task) (string, error)
	Finish(ctx context.Context, runID string, res *agent.Result, runErr error) error
}

// Outcome is the result of one task in a batch.
type Outcome struct {
	TaskID          string        `json:"task_id"`
	Question        string        `json:"question"`
	SubmittedAnswer string        `json:"submitted_answer,omitempty"`
	Error           string        `json:"error,omitempty"`
	RunID           string        `json:"run_id,omitempty"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Failed reports whether the task ended in an error.
func (o Outcome) Failed() bool { return o.Error != "" }

// Config configures a Runner.
type Config struct {
	Loop TaskRunner
	// Recorder is optional; nil disables run recording.
	Recorder Recorder
	// Concurrency is the number of tasks run in parallel. Values
	// below one mean one.
	Concurrency int
	Logger      *slog.Logger
}

// Runner is the caller-facing entry point to the agent.
type Runner struct {
	loop        TaskRunner
	recorder    Recorder
	concurrency int
	logger      *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		loop:        cfg.Loop,
		recorder:    cfg.Recorder,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
}

// Run answers question for taskID and returns the final answer.
func (r *Runner) Run(ctx context.Context, question, taskID string) (string, error) {
	res, _, err := r.runTask(ctx, agent.Task{ID: taskID, Question: question})
	if err != nil {
		return "", err
	}
	return res.Answer, nil
}

// RunAll executes tasks with at most Concurrency running at once and
// returns one Outcome per task, in input order. A failing task is
// recorded in its Outcome and never stops the others. Cancelling ctx
// fails the tasks that have not finished.
func (r *Runner) RunAll(ctx context.Context, tasks []agent.Task) []Outcome {
	out := make([]Outcome, len(tasks))

	var (
		mu   sync.Mutex
		done int
	)

	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)
	for i, task := range tasks {
		g.Go(func() error {
			start := time.Now()
			res, runID, err := r.runTask(ctx, task)

			o := Outcome{
				TaskID:   task.ID,
				Question: task.Question,
				RunID:    runID,
				Elapsed:  time.Since(start),
			}
			if err != nil {
				o.Error = err.Error()
			} else {
				o.SubmittedAnswer = res.Answer
			}
			out[i] = o

			mu.Lock()
			done++
			n := done
			mu.Unlock()

			if err != nil {
				r.logger.Error("task failed",
					"task_id", task.ID,
					"progress", n,
					"total", len(tasks),
					"error", err,
				)
			} else {
				r.logger.Info("task complete",
					"task_id", task.ID,
					"progress", n,
					"total", len(tasks),
					"answer", o.SubmittedAnswer,
					"elapsed", o.Elapsed.Round(time.Millisecond),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (r *Runner) runTask(ctx context.Context, task agent.Task) (*agent.Result, string, error) {
	var runID string
	if r.recorder != nil {
		id, err := r.recorder.Start(ctx, task)
		if err != nil {
			r.logger.Warn("failed to record run start", "task_id", task.ID, "error", err)
		} else {
			runID = id
			ctx = runs.WithRunID(ctx, runID)
		}
	}

	res, err := r.loop.Run(ctx, task)

	if runID != "" {
		if ferr := r.recorder.Finish(context.WithoutCancel(ctx), runID, res, err); ferr != nil {
			r.logger.Warn("failed to record run finish", "run_id", runID, "error", ferr)
		}
	}
	return res, runID, err
}
