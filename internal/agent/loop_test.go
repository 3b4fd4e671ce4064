package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePlanner struct {
	result PlanResult
	err    error
	calls  int
}

func (f *fakePlanner) Plan(context.Context, string) (PlanResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeAcquirer struct {
	path  string
	err   error
	calls []string
}

func (f *fakeAcquirer) Acquire(_ context.Context, taskID string) (string, error) {
	f.calls = append(f.calls, taskID)
	return f.path, f.err
}

// fakeExecutor answers each step from results, keyed by step text.
type fakeExecutor struct {
	results map[string]string
	seen    []State
	err     error
}

func (f *fakeExecutor) Execute(_ context.Context, s State) (PastStep, error) {
	f.seen = append(f.seen, s)
	if f.err != nil {
		return PastStep{}, f.err
	}
	head := s.Plan[0]
	res, ok := f.results[head]
	if !ok {
		res = "did " + head
	}
	return PastStep{Step: head, Result: res}, nil
}

// fakeReplanner returns scripted acts; when the script runs out it
// keeps revising with fresh steps.
type fakeReplanner struct {
	acts  []Act
	err   error
	seen  []State
	fresh int
}

func (f *fakeReplanner) Replan(_ context.Context, s State) (Act, error) {
	f.seen = append(f.seen, s)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.acts) > 0 {
		a := f.acts[0]
		f.acts = f.acts[1:]
		return a, nil
	}
	f.fresh++
	return Revise{Steps: []string{fmt.Sprintf("look again %d", f.fresh)}}, nil
}

type fakeFinalizer struct {
	raw []string
}

func (f *fakeFinalizer) Finalize(_ context.Context, _, raw string) (string, error) {
	f.raw = append(f.raw, raw)
	return NormalizeAnswer(raw), nil
}

type bogusAct struct{}

func (bogusAct) isAct() {}

type fixture struct {
	planner   *fakePlanner
	acquirer  *fakeAcquirer
	executor  *fakeExecutor
	replanner *fakeReplanner
	finalizer *fakeFinalizer
	events    []Event
}

func newFixture(plan PlanResult, acts ...Act) *fixture {
	return &fixture{
		planner:   &fakePlanner{result: plan},
		acquirer:  &fakeAcquirer{path: "/scratch/tmp_task_1.xlsx"},
		executor:  &fakeExecutor{results: map[string]string{}},
		replanner: &fakeReplanner{acts: acts},
		finalizer: &fakeFinalizer{},
	}
}

func (f *fixture) loop(t *testing.T, maxIterations int) *Loop {
	t.Helper()
	l, err := NewLoop(Config{
		Planner:       f.planner,
		Acquirer:      f.acquirer,
		Executor:      f.executor,
		Replanner:     f.replanner,
		Finalizer:     f.finalizer,
		MaxIterations: maxIterations,
		Logger:        quietLogger(),
		Observer: ObserverFunc(func(_ context.Context, ev Event) {
			f.events = append(f.events, ev)
		}),
	})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	return l
}

func (f *fixture) path() []string {
	var nodes []string
	for _, ev := range f.events {
		nodes = append(nodes, ev.Node.String())
	}
	return nodes
}

func TestNewLoop_MissingNodes(t *testing.T) {
	_, err := NewLoop(Config{Planner: &fakePlanner{}})
	if err == nil {
		t.Fatal("expected error for missing nodes")
	}
	for _, want := range []string{"acquirer", "executor", "replanner", "finalizer"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should name %s", err, want)
		}
	}
}

func TestRun_NoFileSkipsDownload(t *testing.T) {
	f := newFixture(
		PlanResult{Steps: []string{"Determine John's apples", "Add both counts"}},
		Revise{Steps: []string{"Add both counts"}},
		Respond{Text: "8"},
	)
	f.executor.results["Determine John's apples"] = "John has 5 apples."
	f.executor.results["Add both counts"] = "3 + 5 = 8"

	res, err := f.loop(t, 0).Run(context.Background(), Task{ID: "t1", Question: "How many apples?"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Answer != "8" {
		t.Errorf("Answer = %q, want 8", res.Answer)
	}
	if len(f.acquirer.calls) != 0 {
		t.Errorf("acquirer called %d times, want 0", len(f.acquirer.calls))
	}
	want := []string{"planner", "executor", "replanner", "executor", "replanner", "finalizer"}
	if got := f.path(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("path = %v, want %v", got, want)
	}
	if res.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", res.Iterations)
	}
	if res.GuardTripped {
		t.Error("GuardTripped should be false")
	}
	if res.State.HasFile || res.State.Attachment != "" {
		t.Errorf("state = %+v, want no file", res.State)
	}
}

func TestRun_FileAcquiredOnceBeforeExecution(t *testing.T) {
	f := newFixture(
		PlanResult{Steps: []string{"Read the attached spreadsheet", "Sum food sales"}, HasFile: true},
		Revise{Steps: []string{"Sum food sales"}},
		Respond{Text: "89706.00"},
	)

	res, err := f.loop(t, 0).Run(context.Background(), Task{ID: "7bd855d8", Question: "What were the total food sales?"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.acquirer.calls) != 1 || f.acquirer.calls[0] != "7bd855d8" {
		t.Fatalf("acquirer calls = %v, want exactly [7bd855d8]", f.acquirer.calls)
	}
	if got := f.path(); got[1] != "download_file" || got[2] != "executor" {
		t.Errorf("path = %v, want download before first execution", got)
	}
	for i, s := range f.executor.seen {
		if s.Attachment != "/scratch/tmp_task_1.xlsx" || !s.HasFile {
			t.Errorf("execution %d saw attachment %q has_file=%v", i, s.Attachment, s.HasFile)
		}
	}
	if res.Answer != "89706.00" {
		t.Errorf("Answer = %q", res.Answer)
	}
}

func TestRun_RespondGoesStraightToFinalizer(t *testing.T) {
	f := newFixture(
		PlanResult{Steps: []string{"Look it up", "Double check", "Report"}},
		Respond{Text: "Saint Petersburg"},
	)

	res, err := f.loop(t, 0).Run(context.Background(), Task{ID: "t", Question: "Where?"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.executor.seen) != 1 {
		t.Errorf("executor visits = %d, want 1", len(f.executor.seen))
	}
	if got := f.path(); got[len(got)-1] != "finalizer" || got[len(got)-2] != "replanner" {
		t.Errorf("path = %v", got)
	}
	if len(f.finalizer.raw) != 1 || f.finalizer.raw[0] != "Saint Petersburg" {
		t.Errorf("finalizer raw = %v", f.finalizer.raw)
	}
	if res.RawAnswer != "Saint Petersburg" {
		t.Errorf("RawAnswer = %q", res.RawAnswer)
	}
}

func TestRun_PastStepsGrowByOnePerExecution(t *testing.T) {
	f := newFixture(PlanResult{Steps: []string{"a"}},
		Revise{Steps: []string{"b"}},
		Revise{Steps: []string{"c"}},
		Respond{Text: "done"},
	)

	if _, err := f.loop(t, 0).Run(context.Background(), Task{ID: "t", Question: "q"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var prev []PastStep
	for _, ev := range f.events {
		got := ev.State.PastSteps
		want := len(prev)
		if ev.Node == NodeExecutor {
			want++
		}
		if len(got) != want {
			t.Fatalf("after %s: %d past steps, want %d", ev.Node, len(got), want)
		}
		for i := range prev {
			if got[i] != prev[i] {
				t.Fatalf("after %s: past step %d changed from %+v to %+v", ev.Node, i, prev[i], got[i])
			}
		}
		prev = got
	}
	if len(prev) != 3 {
		t.Errorf("final past steps = %d, want 3", len(prev))
	}
}

func TestRun_ReplannerSeesFullTrail(t *testing.T) {
	f := newFixture(PlanResult{Steps: []string{"a"}},
		Revise{Steps: []string{"b"}},
		Respond{Text: "done"},
	)
	if _, err := f.loop(t, 0).Run(context.Background(), Task{ID: "t", Question: "q"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, s := range f.replanner.seen {
		if len(s.PastSteps) != i+1 {
			t.Errorf("replan %d saw %d past steps, want %d", i, len(s.PastSteps), i+1)
		}
	}
}

func TestRun_RevisedPlanNeverRepeatsExecutedSteps(t *testing.T) {
	f := newFixture(PlanResult{Steps: []string{"Search the web", "Read the page"}},
		Revise{Steps: []string{"Search the web", "  read the PAGE ", "Count the albums"}},
		Revise{Steps: []string{"Search the web", "Count the albums"}},
		Respond{Text: "3"},
	)

	if _, err := f.loop(t, 0).Run(context.Background(), Task{ID: "t", Question: "q"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, ev := range f.events {
		if ev.Node != NodeReplanner {
			continue
		}
		done := map[string]bool{}
		for _, p := range ev.State.PastSteps {
			done[stepKey(p.Step)] = true
		}
		for _, step := range ev.State.Plan {
			if done[stepKey(step)] && ev.Next == NodeExecutor {
				t.Errorf("revised plan %v repeats executed step %q", ev.State.Plan, step)
			}
		}
	}
	var executed []string
	for _, s := range f.executor.seen {
		executed = append(executed, s.Plan[0])
	}
	want := []string{"Search the web", "read the PAGE", "Count the albums"}
	if strings.Join(executed, "|") != strings.Join(want, "|") {
		t.Errorf("executed = %v, want %v", executed, want)
	}
}

func TestRun_RevisionWithNothingNewIsMalformed(t *testing.T) {
	f := newFixture(PlanResult{Steps: []string{"a"}}, Revise{Steps: []string{"a"}})

	_, err := f.loop(t, 0).Run(context.Background(), Task{ID: "t", Question: "q"})
	var act *MalformedActError
	if !errors.As(err, &act) {
		t.Fatalf("err = %v, want *MalformedActError", err)
	}
	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) || nodeErr.Node != NodeReplanner {
		t.Errorf("err = %v, want NodeError from replanner", err)
	}
}

func TestRun_EmptyRespondContinuesWithRemainingPlan(t *testing.T) {
	f := newFixture(PlanResult{Steps: []string{"a", "b"}},
		Respond{Text: "  "},
		Respond{Text: "B"},
	)
	res, err := f.loop(t, 0).Run(context.Background(), Task{ID: "t", Question: "q"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.executor.seen) != 2 || f.executor.seen[1].Plan[0] != "b" {
		t.Errorf("second execution should run b, saw %+v", f.executor.seen)
	}
	if res.Answer != "B" {
		t.Errorf("Answer = %q", res.Answer)
	}
}

func TestRun_EmptyRespondWithNothingLeftIsMalformed(t *testing.T) {
	f := newFixture(PlanResult{Steps: []string{"a"}}, Respond{})
	_, err := f.loop(t, 0).Run(context.Background(), Task{ID: "t", Question: "q"})
	var act *MalformedActError
	if !errors.As(err, &act) {
		t.Fatalf("err = %v, want *MalformedActError", err)
	}
}

func TestRun_UnknownActIsMalformed(t *testing.T) {
	f := newFixture(PlanResult{Steps: []string{"a"}}, bogusAct{})
	_, err := f.loop(t, 0).Run(context.Background(), Task{ID: "t", Question: "q"})
	var act *MalformedActError
	if !errors.As(err, &act) {
		t.Fatalf("err = %v, want *MalformedActError", err)
	}
}

func TestRun_IterationGuard(t *testing.T) {
	tests := []struct {
		name          string
		maxIterations int
		wantVisits    int
	}{
		{"explicit", 3, 3},
		{"default", 0, DefaultMaxIterations},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(PlanResult{Steps: []string{"start"}})

			res, err := f.loop(t, tt.maxIterations).Run(context.Background(), Task{ID: "t", Question: "q"})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !res.GuardTripped {
				t.Error("GuardTripped = false, want true")
			}
			if len(f.executor.seen) != tt.wantVisits || res.Iterations != tt.wantVisits {
				t.Errorf("executor visits = %d, iterations = %d, want %d", len(f.executor.seen), res.Iterations, tt.wantVisits)
			}
			last := res.State.PastSteps[len(res.State.PastSteps)-1].Result
			if len(f.finalizer.raw) != 1 || f.finalizer.raw[0] != last {
				t.Errorf("finalizer raw = %v, want last step result %q", f.finalizer.raw, last)
			}
		})
	}
}

func TestRun_IterationGuardSkipsEmptyResults(t *testing.T) {
	tests := []struct {
		name    string
		results map[string]string
		want    string
	}{
		{"last step empty", map[string]string{"look again 1": "  "}, "Found 42"},
		{"every step empty", map[string]string{"start": "", "look again 1": ""}, NoAnswer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(PlanResult{Steps: []string{"start"}})
			f.executor.results = tt.results
			if _, ok := tt.results["start"]; !ok {
				f.executor.results["start"] = "Found 42"
			}

			res, err := f.loop(t, 2).Run(context.Background(), Task{ID: "t", Question: "q"})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !res.GuardTripped {
				t.Error("GuardTripped = false, want true")
			}
			if len(f.finalizer.raw) != 1 || f.finalizer.raw[0] != tt.want {
				t.Errorf("finalizer raw = %q, want %q", f.finalizer.raw, tt.want)
			}
			if res.Answer == "" {
				t.Error("Answer is empty")
			}
		})
	}
}

func TestRun_UnboundedWhenNegative(t *testing.T) {
	f := newFixture(PlanResult{Steps: []string{"start"}})
	for i := 0; i < DefaultMaxIterations+5; i++ {
		f.replanner.acts = append(f.replanner.acts, Revise{Steps: []string{fmt.Sprintf("step %d", i)}})
	}
	f.replanner.acts = append(f.replanner.acts, Respond{Text: "finally"})

	res, err := f.loop(t, -1).Run(context.Background(), Task{ID: "t", Question: "q"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.GuardTripped {
		t.Error("guard should be disabled")
	}
	if res.Iterations != DefaultMaxIterations+6 {
		t.Errorf("Iterations = %d, want %d", res.Iterations, DefaultMaxIterations+6)
	}
}

func TestRun_NodeFailuresAbort(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name     string
		setup    func(f *fixture)
		wantNode Node
	}{
		{"planner", func(f *fixture) { f.planner.err = boom }, NodePlanner},
		{"download", func(f *fixture) { f.planner.result.HasFile = true; f.acquirer.err = boom }, NodeDownload},
		{"executor", func(f *fixture) { f.executor.err = boom }, NodeExecutor},
		{"replanner", func(f *fixture) { f.replanner.err = boom }, NodeReplanner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(PlanResult{Steps: []string{"a"}}, Respond{Text: "x"})
			tt.setup(f)

			res, err := f.loop(t, 0).Run(context.Background(), Task{ID: "t", Question: "q"})
			if res != nil {
				t.Errorf("result = %+v, want nil", res)
			}
			if !errors.Is(err, boom) {
				t.Fatalf("err = %v, want boom", err)
			}
			var nodeErr *NodeError
			if !errors.As(err, &nodeErr) || nodeErr.Node != tt.wantNode {
				t.Errorf("err = %v, want NodeError from %s", err, tt.wantNode)
			}
			if f.executor.err == nil && tt.wantNode == NodePlanner && len(f.executor.seen) != 0 {
				t.Error("executor ran after planner failure")
			}
		})
	}
}

func TestRun_PlanWithBlankStepsIsMalformed(t *testing.T) {
	f := newFixture(PlanResult{Steps: []string{" ", ""}})
	_, err := f.loop(t, 0).Run(context.Background(), Task{ID: "t", Question: "q"})
	var mp *MalformedPlanError
	if !errors.As(err, &mp) {
		t.Fatalf("err = %v, want *MalformedPlanError", err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newFixture(PlanResult{Steps: []string{"a"}})
	_, err := f.loop(t, 0).Run(ctx, Task{ID: "t", Question: "q"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if f.planner.calls != 0 {
		t.Error("planner ran on a cancelled context")
	}
}

func TestRun_EmptyQuestion(t *testing.T) {
	f := newFixture(PlanResult{Steps: []string{"a"}})
	if _, err := f.loop(t, 0).Run(context.Background(), Task{ID: "t"}); err == nil {
		t.Error("expected error for empty question")
	}
}

func TestNodeString(t *testing.T) {
	want := map[Node]string{
		NodePlanner:   "planner",
		NodeDownload:  "download_file",
		NodeExecutor:  "executor",
		NodeReplanner: "replanner",
		NodeFinalizer: "finalizer",
		NodeEnd:       "end",
		Node(42):      "node(42)",
	}
	for n, s := range want {
		if n.String() != s {
			t.Errorf("Node(%d).String() = %q, want %q", int(n), n.String(), s)
		}
	}
}
