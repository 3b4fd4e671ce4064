// Package agent implements the plan, execute, replan control loop that
// answers a task. Each node is an interface so the loop can be driven
// by LLM-backed implementations in production and by fakes in tests.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultMaxIterations bounds executor visits per task.
const DefaultMaxIterations = 12

// NoAnswer is the candidate handed to the finalizer when the iteration
// limit trips before any step produced output.
const NoAnswer = "No answer"

// Node identifies a loop state.
type Node int

// Loop nodes, in the order a task normally visits them.
const (
	NodePlanner Node = iota
	NodeDownload
	NodeExecutor
	NodeReplanner
	NodeFinalizer
	NodeEnd
)

func (n Node) String() string {
	switch n {
	case NodePlanner:
		return "planner"
	case NodeDownload:
		return "download_file"
	case NodeExecutor:
		return "executor"
	case NodeReplanner:
		return "replanner"
	case NodeFinalizer:
		return "finalizer"
	case NodeEnd:
		return "end"
	default:
		return fmt.Sprintf("node(%d)", int(n))
	}
}

// Planner turns a question into an initial plan.
type Planner interface {
	Plan(ctx context.Context, question string) (PlanResult, error)
}

// Acquirer downloads a task's attachment and returns its local path.
type Acquirer interface {
	Acquire(ctx context.Context, taskID string) (string, error)
}

// Executor runs the head of the plan.
type Executor interface {
	Execute(ctx context.Context, s State) (PastStep, error)
}

// Replanner decides whether to answer or keep working.
type Replanner interface {
	Replan(ctx context.Context, s State) (Act, error)
}

// Finalizer normalizes a candidate answer.
type Finalizer interface {
	Finalize(ctx context.Context, question, raw string) (string, error)
}

// Event describes one completed node visit.
type Event struct {
	TaskID string
	Node   Node
	Next   Node
	// State is a snapshot taken after the node's update was merged.
	State State
	// Iteration counts executor visits so far.
	Iteration int
	Elapsed   time.Duration
}

// Observer is notified after every node visit. Observers run on the
// loop's goroutine and must not block.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// Config wires the loop's nodes.
type Config struct {
	Planner   Planner
	Acquirer  Acquirer
	Executor  Executor
	Replanner Replanner
	Finalizer Finalizer

	// MaxIterations caps executor visits. Zero means
	// DefaultMaxIterations; a negative value disables the cap.
	MaxIterations int

	Logger   *slog.Logger
	Observer Observer
}

// Loop runs tasks through the control loop. A Loop holds no per-task
// state and may run many tasks concurrently.
type Loop struct {
	cfg    Config
	logger *slog.Logger
}

// NewLoop validates cfg and returns a Loop.
func NewLoop(cfg Config) (*Loop, error) {
	var missing []string
	if cfg.Planner == nil {
		missing = append(missing, "planner")
	}
	if cfg.Acquirer == nil {
		missing = append(missing, "acquirer")
	}
	if cfg.Executor == nil {
		missing = append(missing, "executor")
	}
	if cfg.Replanner == nil {
		missing = append(missing, "replanner")
	}
	if cfg.Finalizer == nil {
		missing = append(missing, "finalizer")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("agent: missing %s", strings.Join(missing, ", "))
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{cfg: cfg, logger: logger}, nil
}

// Result is the outcome of a task.
type Result struct {
	TaskID string `json:"task_id"`
	// Answer is the normalized final answer.
	Answer string `json:"answer"`
	// RawAnswer is what the finalizer was given.
	RawAnswer  string `json:"raw_answer"`
	State      State  `json:"state"`
	Iterations int    `json:"iterations"`
	// GuardTripped is set when MaxIterations forced finalization.
	GuardTripped bool `json:"guard_tripped,omitempty"`
}

// Run answers task. Any node failure aborts the task and is returned
// as a *NodeError; nothing is retried.
func (l *Loop) Run(ctx context.Context, task Task) (*Result, error) {
	if strings.TrimSpace(task.Question) == "" {
		return nil, errors.New("agent: question is empty")
	}

	start := time.Now()
	log := l.logger.With("task_id", task.ID)
	log.Info("task started", "question_len", len(task.Question))

	state := State{TaskID: task.ID, Question: task.Question}
	res := &Result{TaskID: task.ID}

	for node := NodePlanner; node != NodeEnd; {
		if err := ctx.Err(); err != nil {
			return nil, &NodeError{Node: node, Err: err}
		}

		visitStart := time.Now()
		upd, next, err := l.visit(ctx, node, state, res)
		if err != nil {
			log.Warn("task aborted", "node", node.String(), "error", err)
			return nil, &NodeError{Node: node, Err: err}
		}
		if err := state.apply(node, upd); err != nil {
			return nil, &NodeError{Node: node, Err: err}
		}

		elapsed := time.Since(visitStart)
		log.Debug("node complete",
			"node", node.String(),
			"next", next.String(),
			"plan_len", len(state.Plan),
			"past_steps", len(state.PastSteps),
			"elapsed", elapsed.Round(time.Millisecond),
		)
		if l.cfg.Observer != nil {
			l.cfg.Observer.Observe(ctx, Event{
				TaskID:    task.ID,
				Node:      node,
				Next:      next,
				State:     state.Clone(),
				Iteration: res.Iterations,
				Elapsed:   elapsed,
			})
		}
		node = next
	}

	res.State = state
	log.Info("task complete",
		"answer", res.Answer,
		"iterations", res.Iterations,
		"guard_tripped", res.GuardTripped,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}

// visit runs one node against a snapshot of state and returns its
// update and the next node.
func (l *Loop) visit(ctx context.Context, node Node, state State, res *Result) (Update, Node, error) {
	switch node {
	case NodePlanner:
		pr, err := l.cfg.Planner.Plan(ctx, state.Question)
		if err != nil {
			return Update{}, node, err
		}
		steps := remainingSteps(pr.Steps, nil)
		if len(steps) == 0 {
			return Update{}, node, &MalformedPlanError{Reason: "no steps"}
		}
		hasFile := pr.HasFile
		next := NodeExecutor
		if hasFile {
			next = NodeDownload
		}
		return Update{Plan: steps, HasFile: &hasFile}, next, nil

	case NodeDownload:
		path, err := l.cfg.Acquirer.Acquire(ctx, state.TaskID)
		if err != nil {
			return Update{}, node, err
		}
		return Update{Attachment: path}, NodeExecutor, nil

	case NodeExecutor:
		if len(state.Plan) == 0 {
			return Update{}, node, ErrEmptyPlan
		}
		step, err := l.cfg.Executor.Execute(ctx, state.Clone())
		if err != nil {
			return Update{}, node, err
		}
		res.Iterations++
		return Update{PastSteps: []PastStep{step}}, NodeReplanner, nil

	case NodeReplanner:
		act, err := l.cfg.Replanner.Replan(ctx, state.Clone())
		if err != nil {
			return Update{}, node, err
		}
		upd, next, err := l.decide(act, state)
		if err != nil {
			return Update{}, node, err
		}
		if next == NodeExecutor && l.cfg.MaxIterations > 0 && res.Iterations >= l.cfg.MaxIterations {
			l.logger.Warn("iteration limit reached, forcing finalization",
				"task_id", state.TaskID,
				"max_iterations", l.cfg.MaxIterations,
			)
			res.GuardTripped = true
			answer := state.LastResult()
			if answer == "" {
				answer = NoAnswer
			}
			return Update{Answer: answer}, NodeFinalizer, nil
		}
		return upd, next, nil

	case NodeFinalizer:
		raw := strings.TrimSpace(state.Answer)
		answer, err := l.cfg.Finalizer.Finalize(ctx, state.Question, raw)
		if err != nil {
			return Update{}, node, err
		}
		res.RawAnswer = raw
		res.Answer = answer
		return Update{}, NodeEnd, nil
	}
	return Update{}, node, fmt.Errorf("unknown node %s", node)
}

// decide maps the replanner's act to an update and the next node.
func (l *Loop) decide(act Act, state State) (Update, Node, error) {
	switch a := act.(type) {
	case Respond:
		if text := strings.TrimSpace(a.Text); text != "" {
			return Update{Answer: text}, NodeFinalizer, nil
		}
		rest := remainingSteps(state.Plan, state.PastSteps)
		if len(rest) == 0 {
			return Update{}, NodeReplanner, &MalformedActError{Reason: "empty response with no steps remaining"}
		}
		return Update{Plan: rest}, NodeExecutor, nil
	case Revise:
		rest := remainingSteps(a.Steps, state.PastSteps)
		if len(rest) == 0 {
			return Update{}, NodeReplanner, &MalformedActError{Reason: "revised plan has no new steps"}
		}
		return Update{Plan: rest}, NodeExecutor, nil
	default:
		return Update{}, NodeReplanner, &MalformedActError{Reason: fmt.Sprintf("unexpected act %T", act)}
	}
}
