package agent

import (
	"fmt"
	"strings"
)

// Task is one question to answer. TaskID also names the task's
// attachment on the file server.
type Task struct {
	ID       string `json:"task_id"`
	Question string `json:"question"`
}

// PastStep is an executed plan step and the executor's final message.
type PastStep struct {
	Step   string `json:"step"`
	Result string `json:"result"`
}

// State is the record threaded through the loop. Nodes receive a
// clone and report changes as an Update; only the loop mutates State.
type State struct {
	TaskID   string `json:"task_id"`
	Question string `json:"question"`
	// HasFile is decided once, by the planner.
	HasFile bool `json:"has_file"`
	// Attachment is the local path of the acquired file, set at most once.
	Attachment string `json:"attachment,omitempty"`
	// Plan holds the steps still to execute; its head runs next.
	Plan []string `json:"plan"`
	// PastSteps only ever grows.
	PastSteps []PastStep `json:"past_steps"`
	// Answer is the candidate answer handed to the finalizer.
	Answer string `json:"answer,omitempty"`
}

// Update is the partial change a node contributes to State.
type Update struct {
	HasFile    *bool
	Attachment string
	Plan       []string
	PastSteps  []PastStep
	Answer     string
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	c := s
	if s.Plan != nil {
		c.Plan = append([]string(nil), s.Plan...)
	}
	if s.PastSteps != nil {
		c.PastSteps = append([]PastStep(nil), s.PastSteps...)
	}
	return c
}

// LastResult returns the most recent non-blank step result, or "".
func (s State) LastResult() string {
	for i := len(s.PastSteps) - 1; i >= 0; i-- {
		if r := strings.TrimSpace(s.PastSteps[i].Result); r != "" {
			return r
		}
	}
	return ""
}

// apply merges u, produced by node from, into s.
func (s *State) apply(from Node, u Update) error {
	if u.HasFile != nil {
		if from != NodePlanner {
			return fmt.Errorf("%w: %s may not set has_file", ErrStateViolation, from)
		}
		s.HasFile = *u.HasFile
	}
	if u.Attachment != "" {
		if s.Attachment != "" {
			return fmt.Errorf("%w: attachment already set to %s", ErrStateViolation, s.Attachment)
		}
		s.Attachment = u.Attachment
	}
	if u.Plan != nil {
		if from == NodeExecutor {
			return fmt.Errorf("%w: executor may not change the plan", ErrStateViolation)
		}
		s.Plan = append([]string(nil), u.Plan...)
	}
	if len(u.PastSteps) > 0 {
		s.PastSteps = append(s.PastSteps, u.PastSteps...)
	}
	if u.Answer != "" {
		s.Answer = u.Answer
	}
	return nil
}

// PlanResult is the planner's structured output.
type PlanResult struct {
	Steps   []string `json:"steps"`
	HasFile bool     `json:"has_file"`
}

// Act is the replanner's decision: Respond or Revise.
type Act interface {
	isAct()
}

// Respond ends the task with a candidate answer.
type Respond struct {
	Text string
}

// Revise continues with the steps that remain.
type Revise struct {
	Steps []string
}

func (Respond) isAct() {}
func (Revise) isAct()  {}

// remainingSteps drops blank steps and any step already executed.
func remainingSteps(steps []string, past []PastStep) []string {
	done := make(map[string]bool, len(past))
	for _, p := range past {
		done[stepKey(p.Step)] = true
	}
	var out []string
	for _, s := range steps {
		s = strings.TrimSpace(s)
		if s == "" || done[stepKey(s)] {
			continue
		}
		out = append(out, s)
	}
	return out
}

func stepKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
