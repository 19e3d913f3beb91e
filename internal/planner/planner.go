// Package planner implements the fast path for simple goals: ask the
// model for a complete tool plan up front, execute it without further
// model round trips, then report. Goals the model cannot plan fall back
// to the iterative runner.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/DroidClaw/DroidClaw/internal/agent"
	"github.com/DroidClaw/DroidClaw/internal/provider"
	"github.com/DroidClaw/DroidClaw/internal/tools"
)

// PlanStep is one pre-planned tool call.
type PlanStep struct {
	Tool        string         `json:"tool"`
	Args        map[string]any `json:"args"`
	Parallel    bool           `json:"parallel"`
	Description string         `json:"description,omitempty"`
}

// Plan is the model's answer to the planning prompt.
type Plan struct {
	CanPlan   bool       `json:"can_plan"`
	Steps     []PlanStep `json:"steps"`
	Reasoning string     `json:"reasoning,omitempty"`
}

// Result is the outcome of a planned execution.
type Result struct {
	Success bool
	Report  string
	Steps   []agent.ToolStep
}

// Engine plans and executes through the shared tool executor, so hooks
// and loop detection apply to planned calls too.
type Engine struct {
	provider provider.LLMProvider
	executor *agent.ToolExecutor
}

// New creates a plan engine.
func New(p provider.LLMProvider, exec *agent.ToolExecutor) *Engine {
	return &Engine{provider: p, executor: exec}
}

const planSystemPrompt = `You plan tool calls for an Android device agent.
Given a goal and the available tools, decide whether the goal can be fully
achieved by a fixed sequence of tool calls planned in advance, without
looking at intermediate results.

Respond with JSON only:
{"can_plan": true|false, "steps": [{"tool": "...", "args": {...}, "parallel": false, "description": "..."}], "reasoning": "..."}

Set can_plan to false when the goal needs observation between steps (for
example reading the screen to decide where to tap). Mark a step parallel
only when it does not depend on any earlier step.`

// Run attempts the fast path. It returns nil when the goal is not
// plannable, signalling the caller to fall back to the iterative loop.
func (e *Engine) Run(ctx context.Context, goal string) (*Result, error) {
	plan := e.plan(ctx, goal)
	if plan == nil || !plan.CanPlan || len(plan.Steps) == 0 {
		return nil, nil
	}

	start := time.Now()
	steps, success := e.execute(ctx, plan.Steps)
	report := e.report(ctx, goal, steps, success, time.Since(start))
	return &Result{Success: success, Report: report, Steps: steps}, nil
}

// plan asks the model for a plan and validates it. Any failure along the
// way means "not plannable" rather than an error: the runner can always
// take over.
func (e *Engine) plan(ctx context.Context, goal string) *Plan {
	var names []string
	for _, def := range e.executor.Registry.Definitions() {
		names = append(names, fmt.Sprintf("%s: %s", def.Function.Name, def.Function.Description))
	}
	user := fmt.Sprintf("Goal: %s\n\nAvailable tools:\n%s", goal, strings.Join(names, "\n"))

	raw, err := e.provider.Ask(ctx, planSystemPrompt, user)
	if err != nil {
		slog.Warn("Planning call failed, falling back to runner", "error", err)
		return nil
	}

	var plan Plan
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &plan); err != nil {
		slog.Warn("Plan response was not valid JSON, falling back to runner", "error", err)
		return nil
	}

	kept := plan.Steps[:0]
	for _, s := range plan.Steps {
		if !e.executor.Registry.Has(s.Tool) {
			slog.Warn("Plan referenced unknown tool, dropping step", "tool", s.Tool)
			continue
		}
		kept = append(kept, s)
	}
	plan.Steps = kept
	return &plan
}

// execute runs the plan. Contiguous parallel-capable steps fan out
// together; phone-class steps always run alone and in order. A failing
// step does not stop the plan, it just fails the overall result.
func (e *Engine) execute(ctx context.Context, planned []PlanStep) ([]agent.ToolStep, bool) {
	steps := make([]agent.ToolStep, len(planned))
	success := true

	i := 0
	for i < len(planned) {
		if !canParallel(planned[i]) {
			steps[i] = e.runStep(ctx, planned[i])
			if !steps[i].Success {
				success = false
			}
			i++
			continue
		}
		j := i
		for j < len(planned) && canParallel(planned[j]) {
			j++
		}
		var wg sync.WaitGroup
		for k := i; k < j; k++ {
			wg.Add(1)
			go func(k int) {
				defer wg.Done()
				steps[k] = e.runStep(ctx, planned[k])
			}(k)
		}
		wg.Wait()
		for k := i; k < j; k++ {
			if !steps[k].Success {
				success = false
			}
		}
		i = j
	}
	return steps, success
}

// canParallel: the model's parallel flag, overridden for phone-class
// tools, which share the single device surface.
func canParallel(s PlanStep) bool {
	return s.Parallel && !tools.IsPhoneClass(s.Tool)
}

func (e *Engine) runStep(ctx context.Context, s PlanStep) agent.ToolStep {
	result, duration := e.executor.Execute(ctx, "planner", s.Tool, s.Args)
	return agent.ToolStep{
		Tool:     s.Tool,
		Args:     s.Args,
		Result:   result.Content,
		Success:  !result.IsError(),
		Duration: duration,
	}
}

const reportSystemPrompt = `Summarize the outcome of an executed tool plan
for the user in one or two sentences. Mention failures plainly.`

// report asks the model for a short summary, with a mechanical fallback
// when that call fails.
func (e *Engine) report(ctx context.Context, goal string, steps []agent.ToolStep, success bool, elapsed time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\nOutcome: success=%v\nSteps:\n", goal, success)
	for _, s := range steps {
		status := "ok"
		if !s.Success {
			status = "failed"
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", s.Tool, status, truncateReport(s.Result, 150))
	}

	summary, err := e.provider.Ask(ctx, reportSystemPrompt, b.String())
	if err != nil || strings.TrimSpace(summary) == "" {
		return fmt.Sprintf("Executed %d steps in %dms.", len(steps), elapsed.Milliseconds())
	}
	return strings.TrimSpace(summary)
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncateReport(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
