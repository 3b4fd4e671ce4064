// Package runs records agent runs, their step trail, and the token
// usage of every model call in a SQLite database. Records are
// append-only apart from the closing update written by [Store.Finish].
package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nugget/smarty/internal/agent"
	"github.com/nugget/smarty/internal/engine"
)

// ErrNotFound is returned by [Store.Get] for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Run is one recorded task run.
type Run struct {
	ID           string     `json:"id"`
	TaskID       string     `json:"task_id"`
	Question     string     `json:"question"`
	Answer       string     `json:"answer,omitempty"`
	Error        string     `json:"error,omitempty"`
	HasFile      bool       `json:"has_file"`
	Attachment   string     `json:"attachment,omitempty"`
	Iterations   int        `json:"iterations"`
	GuardTripped bool       `json:"guard_tripped,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Step is one executed plan step of a run.
type Step struct {
	RunID  string `json:"run_id"`
	Seq    int    `json:"seq"`
	Step   string `json:"step"`
	Result string `json:"result"`
}

// UsageSummary holds token totals for one role within a run.
type UsageSummary struct {
	Role         string `json:"role"`
	Calls        int    `json:"calls"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// Store is a SQLite-backed run log. All public methods are safe for
// concurrent use (SQLite serializes writes).
//
// Store implements [agent.Observer] and [engine.UsageRecorder]; both
// read the active run id from the context (see [WithRunID]) and do
// nothing when it is absent.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens (creating if needed) the run log at dbPath.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open runs database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate runs schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id            TEXT PRIMARY KEY,
		task_id       TEXT NOT NULL,
		question      TEXT NOT NULL,
		answer        TEXT NOT NULL DEFAULT '',
		error         TEXT NOT NULL DEFAULT '',
		has_file      INTEGER NOT NULL DEFAULT 0,
		attachment    TEXT NOT NULL DEFAULT '',
		iterations    INTEGER NOT NULL DEFAULT 0,
		guard_tripped INTEGER NOT NULL DEFAULT 0,
		started_at    TEXT NOT NULL,
		finished_at   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_task ON runs(task_id);

	CREATE TABLE IF NOT EXISTS run_steps (
		run_id TEXT NOT NULL,
		seq    INTEGER NOT NULL,
		step   TEXT NOT NULL,
		result TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE TABLE IF NOT EXISTS usage_records (
		id            TEXT PRIMARY KEY,
		run_id        TEXT NOT NULL,
		timestamp     TEXT NOT NULL,
		role          TEXT NOT NULL,
		model         TEXT NOT NULL,
		input_tokens  INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		duration_ms   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_run ON usage_records(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Start records the beginning of a run for task and returns its id.
func (s *Store) Start(ctx context.Context, task agent.Task) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run ID: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, task_id, question, started_at) VALUES (?, ?, ?, ?)`,
		id.String(),
		task.ID,
		task.Question,
		formatTime(time.Now()),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id.String(), nil
}

// Finish closes a run with the loop's result or error. Either may be
// nil; a failed run usually has no result.
func (s *Store) Finish(ctx context.Context, runID string, res *agent.Result, runErr error) error {
	var (
		answer, errText, attachment string
		hasFile, guard              bool
		iterations                  int
	)
	if res != nil {
		answer = res.Answer
		attachment = res.State.Attachment
		hasFile = res.State.HasFile
		guard = res.GuardTripped
		iterations = res.Iterations
	}
	if runErr != nil {
		errText = runErr.Error()
	}

	// Attachment and has_file may already be set by Observe; keep them
	// when the run failed before producing a result.
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET
			answer = ?,
			error = ?,
			has_file = CASE WHEN ? THEN 1 ELSE has_file END,
			attachment = CASE WHEN ? != '' THEN ? ELSE attachment END,
			iterations = CASE WHEN ? > 0 THEN ? ELSE iterations END,
			guard_tripped = ?,
			finished_at = ?
		 WHERE id = ?`,
		answer,
		errText,
		hasFile,
		attachment, attachment,
		iterations, iterations,
		guard,
		formatTime(time.Now()),
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// RecordStep appends a completed step to a run's trail. seq is the
// 1-based position of the step in the trail.
func (s *Store) RecordStep(ctx context.Context, runID string, seq int, step agent.PastStep) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO run_steps (run_id, seq, step, result) VALUES (?, ?, ?, ?)`,
		runID, seq, step.Step, step.Result,
	)
	if err != nil {
		return fmt.Errorf("insert run step: %w", err)
	}
	return nil
}

// Observe implements [agent.Observer]. Executor visits append the new
// step; the download visit records the attachment and the running
// iteration count is kept current.
func (s *Store) Observe(ctx context.Context, ev agent.Event) {
	runID := RunIDFrom(ctx)
	if runID == "" {
		return
	}

	switch ev.Node {
	case agent.NodeExecutor:
		n := len(ev.State.PastSteps)
		if n == 0 {
			return
		}
		if err := s.RecordStep(ctx, runID, n, ev.State.PastSteps[n-1]); err != nil {
			s.logger.Warn("failed to record run step", "run_id", runID, "error", err)
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE runs SET iterations = ? WHERE id = ?`, ev.Iteration, runID); err != nil {
			s.logger.Warn("failed to update run iterations", "run_id", runID, "error", err)
		}
	case agent.NodePlanner, agent.NodeDownload:
		if _, err := s.db.ExecContext(ctx,
			`UPDATE runs SET has_file = ?, attachment = ? WHERE id = ?`,
			ev.State.HasFile, ev.State.Attachment, runID); err != nil {
			s.logger.Warn("failed to update run attachment", "run_id", runID, "error", err)
		}
	}
}

// RecordUsage implements [engine.UsageRecorder]. Calls made outside a
// run are not recorded.
func (s *Store) RecordUsage(ctx context.Context, u engine.Usage) {
	runID := RunIDFrom(ctx)
	if runID == "" {
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		s.logger.Warn("failed to generate usage record ID", "error", err)
		return
	}

	// Usage is recorded even when the run's context was cancelled.
	_, err = s.db.ExecContext(context.WithoutCancel(ctx),
		`INSERT INTO usage_records
			(id, run_id, timestamp, role, model, input_tokens, output_tokens, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(),
		runID,
		formatTime(time.Now()),
		u.Role,
		u.Model,
		u.InputTokens,
		u.OutputTokens,
		u.Duration.Milliseconds(),
	)
	if err != nil {
		s.logger.Warn("failed to record usage", "run_id", runID, "error", err)
	}
}

// Get returns the run with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", id, err)
	}
	return r, nil
}

// Recent returns up to limit runs, newest first. A non-positive limit
// returns 20 runs.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Steps returns a run's step trail in execution order.
func (s *Store) Steps(ctx context.Context, runID string) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, step, result FROM run_steps WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run steps: %w", err)
	}
	defer rows.Close()

	var out []Step
	for rows.Next() {
		var st Step
		if err := rows.Scan(&st.RunID, &st.Seq, &st.Step, &st.Result); err != nil {
			return nil, fmt.Errorf("scan run step: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Usage returns per-role token totals for a run, ordered by role.
func (s *Store) Usage(ctx context.Context, runID string) ([]UsageSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
		 FROM usage_records
		 WHERE run_id = ?
		 GROUP BY role
		 ORDER BY role`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run usage: %w", err)
	}
	defer rows.Close()

	var out []UsageSummary
	for rows.Next() {
		var u UsageSummary
		if err := rows.Scan(&u.Role, &u.Calls, &u.InputTokens, &u.OutputTokens); err != nil {
			return nil, fmt.Errorf("scan run usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const runColumns = `id, task_id, question, answer, error, has_file, attachment,
	iterations, guard_tripped, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r        Run
		started  string
		finished sql.NullString
	)
	if err := sc.Scan(&r.ID, &r.TaskID, &r.Question, &r.Answer, &r.Error,
		&r.HasFile, &r.Attachment, &r.Iterations, &r.GuardTripped,
		&started, &finished); err != nil {
		return nil, err
	}

	t, err := time.Parse(timeFormat, started)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	r.StartedAt = t
	if finished.Valid {
		ft, err := time.Parse(timeFormat, finished.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		r.FinishedAt = &ft
	}
	return &r, nil
}

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}
