package planner

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DroidClaw/DroidClaw/internal/agent"
	"github.com/DroidClaw/DroidClaw/internal/hooks"
	"github.com/DroidClaw/DroidClaw/internal/provider"
	"github.com/DroidClaw/DroidClaw/internal/tools"
)

// askProvider scripts the Ask responses used by plan and report.
type askProvider struct {
	mu      sync.Mutex
	answers []string
	errs    []error
	calls   int
}

func (a *askProvider) Chat(context.Context, *provider.ChatRequest) (*provider.ChatResponse, error) {
	return &provider.ChatResponse{}, nil
}

func (a *askProvider) Ask(context.Context, string, string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.calls
	a.calls++
	var err error
	if i < len(a.errs) {
		err = a.errs[i]
	}
	if i < len(a.answers) {
		return a.answers[i], err
	}
	return "", err
}

func (a *askProvider) DefaultModel() string { return "test-model" }

type recordingTool struct {
	name   string
	mu     sync.Mutex
	seen   []time.Time
	fail   bool
	delay  time.Duration
	result string
}

func (r *recordingTool) Name() string               { return r.name }
func (r *recordingTool) Description() string        { return "recording stub" }
func (r *recordingTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (r *recordingTool) Execute(context.Context, map[string]any) (*tools.Result, error) {
	r.mu.Lock()
	r.seen = append(r.seen, time.Now())
	r.mu.Unlock()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.fail {
		return tools.Errorf("stub failure"), nil
	}
	if r.result == "" {
		r.result = "ok"
	}
	return tools.TextResult(r.result), nil
}

func newEngine(p provider.LLMProvider, toolset ...tools.Tool) (*Engine, *tools.Registry) {
	reg := tools.NewRegistry()
	for _, t := range toolset {
		reg.Register(t)
	}
	exec := &agent.ToolExecutor{Registry: reg, Hooks: hooks.NewPipeline(), TaskID: "plan-task"}
	return New(p, exec), reg
}

func TestRunNotPlannable(t *testing.T) {
	p := &askProvider{answers: []string{`{"can_plan": false, "steps": [], "reasoning": "needs screen feedback"}`}}
	e, _ := newEngine(p)

	res, err := e.Run(context.Background(), "find the red button and tap it")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res != nil {
		t.Errorf("unplannable goal must return nil, got %+v", res)
	}
}

func TestRunInvalidJSONFallsBack(t *testing.T) {
	p := &askProvider{answers: []string{"I think the plan should be to open the app first."}}
	e, _ := newEngine(p)

	res, err := e.Run(context.Background(), "open the clock")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res != nil {
		t.Errorf("non-JSON plan must return nil, got %+v", res)
	}
}

func TestRunDropsUnknownTools(t *testing.T) {
	known := &recordingTool{name: "wait"}
	p := &askProvider{answers: []string{
		"```json\n" + `{"can_plan": true, "steps": [
			{"tool": "wait", "args": {"ms": 100}},
			{"tool": "teleport", "args": {}}
		]}` + "\n```",
		"Waited briefly.",
	}}
	e, _ := newEngine(p, known)

	res, err := e.Run(context.Background(), "wait a moment")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res == nil {
		t.Fatal("expected a planned run")
	}
	if len(res.Steps) != 1 || res.Steps[0].Tool != "wait" {
		t.Errorf("unknown tool should be dropped, got %+v", res.Steps)
	}
	if !res.Success {
		t.Error("expected success")
	}
	if res.Report != "Waited briefly." {
		t.Errorf("unexpected report: %q", res.Report)
	}
}

func TestRunContinuesPastFailures(t *testing.T) {
	good := &recordingTool{name: "wait"}
	bad := &recordingTool{name: "http_request", fail: true}
	p := &askProvider{answers: []string{
		`{"can_plan": true, "steps": [
			{"tool": "http_request", "args": {"url": "https://x"}},
			{"tool": "wait", "args": {"ms": 1}}
		]}`,
		"",
	}}
	e, _ := newEngine(p, good, bad)

	res, err := e.Run(context.Background(), "fetch then settle")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res == nil {
		t.Fatal("expected a planned run")
	}
	if res.Success {
		t.Error("failed step must fail the plan result")
	}
	if len(good.seen) != 1 {
		t.Error("later step should still run after a failure")
	}
	// Empty report answer falls back to the mechanical summary.
	if !strings.HasPrefix(res.Report, "Executed 2 steps in ") {
		t.Errorf("expected fallback report, got %q", res.Report)
	}
}

func TestPhoneStepsNeverParallel(t *testing.T) {
	tap := &recordingTool{name: "adb_tap", delay: 30 * time.Millisecond}
	p := &askProvider{answers: []string{
		`{"can_plan": true, "steps": [
			{"tool": "adb_tap", "args": {"x": 1, "y": 1}, "parallel": true},
			{"tool": "adb_tap", "args": {"x": 2, "y": 2}, "parallel": true}
		]}`,
		"Tapped twice.",
	}}
	e, _ := newEngine(p, tap)

	res, err := e.Run(context.Background(), "tap twice")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res == nil || !res.Success {
		t.Fatalf("expected successful plan, got %+v", res)
	}
	tap.mu.Lock()
	defer tap.mu.Unlock()
	if len(tap.seen) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(tap.seen))
	}
	// Sequential execution: the second start must come after the first
	// call's delay elapsed.
	if gap := tap.seen[1].Sub(tap.seen[0]); gap < 25*time.Millisecond {
		t.Errorf("phone steps overlapped, gap %v", gap)
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                      `{"a":1}`,
		"```json\n{\"a\":1}\n```":        `{"a":1}`,
		"```\n{\"a\":1}\n```":            `{"a":1}`,
		"  ```json\n{\"a\": true}\n``` ": `{"a": true}`,
	}
	for in, want := range cases {
		if got := stripCodeFences(in); got != want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", in, got, want)
		}
	}
}
