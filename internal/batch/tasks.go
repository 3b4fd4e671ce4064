package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nugget/smarty/internal/agent"
	"github.com/nugget/smarty/internal/httpkit"
)

// rawTask is the wire shape of a task; fields may be missing.
type rawTask struct {
	TaskID   string `json:"task_id"`
	Question string `json:"question"`
}

// DecodeTasks reads a JSON array of {task_id, question} objects.
// Items missing either field are skipped with a warning.
func DecodeTasks(r io.Reader, logger *slog.Logger) ([]agent.Task, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var raw []rawTask
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}

	tasks := make([]agent.Task, 0, len(raw))
	for i, t := range raw {
		id := strings.TrimSpace(t.TaskID)
		if id == "" || strings.TrimSpace(t.Question) == "" {
			logger.Warn("skipping item with missing task_id or question",
				"index", i,
				"task_id", id,
			)
			continue
		}
		tasks = append(tasks, agent.Task{ID: id, Question: t.Question})
	}
	return tasks, nil
}

// LoadTasksFile reads tasks from a JSON file.
func LoadTasksFile(path string, logger *slog.Logger) ([]agent.Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tasks, err := DecodeTasks(f, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tasks, nil
}

// Answer is one entry of the submission payload.
type Answer struct {
	TaskID          string `json:"task_id"`
	SubmittedAnswer string `json:"submitted_answer"`
}

// Answers converts outcomes to submission entries. Failed tasks are
// left out.
func Answers(outcomes []Outcome) []Answer {
	out := make([]Answer, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Failed() {
			continue
		}
		out = append(out, Answer{TaskID: o.TaskID, SubmittedAnswer: o.SubmittedAnswer})
	}
	return out
}

// WriteAnswers writes the successful outcomes as an indented JSON
// array of {task_id, submitted_answer}.
func WriteAnswers(w io.Writer, outcomes []Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Answers(outcomes)); err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	return nil
}

// WriteAnswersFile writes the answer file at path.
func WriteAnswersFile(path string, outcomes []Outcome) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteAnswers(f, outcomes); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// QuestionsClient fetches the task list from the scoring service.
type QuestionsClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewQuestionsClient creates a client for <baseURL>/questions. A nil
// client uses the shared httpkit client.
func NewQuestionsClient(baseURL string, client *http.Client, logger *slog.Logger) *QuestionsClient {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		)
	}
	return &QuestionsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
		logger:  logger,
	}
}

// Fetch downloads and decodes the question list.
func (c *QuestionsClient) Fetch(ctx context.Context) ([]agent.Task, error) {
	url := c.baseURL + "/questions"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch questions: HTTP %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	tasks, err := DecodeTasks(resp.Body, c.logger)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("fetch questions: list is empty")
	}
	c.logger.Info("fetched questions", "count", len(tasks), "url", url)
	return tasks, nil
}
