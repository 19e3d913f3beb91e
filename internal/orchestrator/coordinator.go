// Package orchestrator is the entry point for task execution. For each
// goal it tries the planned fast path first, then heuristic micro-agent
// decomposition, and falls back to the iterative runner.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DroidClaw/DroidClaw/internal/agent"
	"github.com/DroidClaw/DroidClaw/internal/bus"
	"github.com/DroidClaw/DroidClaw/internal/config"
	"github.com/DroidClaw/DroidClaw/internal/hooks"
	"github.com/DroidClaw/DroidClaw/internal/loopdetect"
	"github.com/DroidClaw/DroidClaw/internal/planner"
	"github.com/DroidClaw/DroidClaw/internal/provider"
	"github.com/DroidClaw/DroidClaw/internal/timeline"
	"github.com/DroidClaw/DroidClaw/internal/tools"
	"github.com/DroidClaw/DroidClaw/internal/trace"
)

// TaskResult is the aggregated outcome of one coordinated task.
type TaskResult struct {
	TaskID     string
	Strategy   string // "plan", "microagent", "runner"
	Success    bool
	Output     string
	Iterations int
	ToolCalls  int
	Duration   time.Duration
}

// Coordinator owns the long-lived pieces (provider, registry, audit
// store) and creates per-task state (detector, executor, hook wiring)
// for each run.
type Coordinator struct {
	cfg      *config.Config
	provider provider.LLMProvider
	registry *tools.Registry
	audit    *timeline.Service
	tracer   *trace.Publisher
	bus      *bus.ProgressBus
	callLog  *hooks.CallLog
}

// New creates a coordinator. audit, tracer, and progressBus may be nil.
func New(cfg *config.Config, p provider.LLMProvider, reg *tools.Registry, audit *timeline.Service, tracer *trace.Publisher, progressBus *bus.ProgressBus) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		provider: p,
		registry: reg,
		audit:    audit,
		tracer:   tracer,
		bus:      progressBus,
		callLog:  hooks.NewCallLog(cfg.Hooks.LogCapacity),
	}
}

// CallLog exposes the shared call log for status reporting.
func (c *Coordinator) CallLog() *hooks.CallLog {
	return c.callLog
}

// RunTask executes one goal end to end and records it in the audit trail.
func (c *Coordinator) RunTask(ctx context.Context, goal string, onProgress agent.ProgressFunc) (*TaskResult, error) {
	taskID := uuid.NewString()
	start := time.Now()
	exec := c.newExecutor(taskID)

	slog.Info("Starting task", "task_id", taskID, "goal", goal)

	strategy, res, err := c.execute(ctx, goal, exec, onProgress)
	if err != nil {
		c.finish(taskID, goal, strategy, &agent.RunnerResult{Output: err.Error()}, start)
		return nil, err
	}
	c.finish(taskID, goal, strategy, res, start)

	return &TaskResult{
		TaskID:     taskID,
		Strategy:   strategy,
		Success:    res.Success,
		Output:     res.Output,
		Iterations: res.Iterations,
		ToolCalls:  res.ToolCalls,
		Duration:   time.Since(start),
	}, nil
}

// newExecutor wires the per-task executor: fresh loop detector, hook
// pipeline with the configured policy hooks, shared audit and bus.
func (c *Coordinator) newExecutor(taskID string) *agent.ToolExecutor {
	pipeline := hooks.NewPipeline()
	pipeline.Add(hooks.NewDenyHook(c.cfg.Hooks.DenyTools))
	pipeline.Add(hooks.NewRateLimiter(c.cfg.Hooks.RateLimitPerMinute, time.Minute).Hook())
	pipeline.Add(c.callLog.Hook())

	var audit agent.AuditStore
	if c.audit != nil {
		audit = c.audit
	}
	return &agent.ToolExecutor{
		Registry: c.registry,
		Hooks:    pipeline,
		Detector: loopdetect.NewWithSize(c.cfg.Agent.DetectorWindowSize),
		Audit:    audit,
		Bus:      c.bus,
		TaskID:   taskID,
	}
}

func (c *Coordinator) execute(ctx context.Context, goal string, exec *agent.ToolExecutor, onProgress agent.ProgressFunc) (string, *agent.RunnerResult, error) {
	if c.audit != nil {
		if err := c.audit.CreateTask(exec.TaskID, goal, "runner"); err != nil {
			slog.Warn("Failed to record task start", "error", err)
		}
	}

	// Fast path: a fully pre-plannable goal skips the iterative loop.
	engine := planner.New(c.provider, exec)
	planRes, err := engine.Run(ctx, goal)
	if err != nil {
		return "plan", nil, err
	}
	if planRes != nil {
		slog.Info("Executed via plan fast path", "task_id", exec.TaskID, "steps", len(planRes.Steps), "success", planRes.Success)
		return "plan", &agent.RunnerResult{
			Success:   planRes.Success,
			Output:    planRes.Report,
			ToolCalls: len(planRes.Steps),
			Steps:     planRes.Steps,
		}, nil
	}

	// Compound goals decompose into micro agents.
	if subtasks := agent.Decompose(goal); len(subtasks) > 1 {
		slog.Info("Decomposed goal into micro agents", "task_id", exec.TaskID, "subtasks", len(subtasks))
		var memory agent.MemoryWriter
		switch {
		case c.tracer != nil && c.tracer.Active():
			memory = c.tracer
		case c.audit != nil:
			memory = c.audit
		}
		spawner := agent.NewSpawner(c.provider, exec, c.cfg.Agent.MicroAgentBudget, memory, exec.TaskID)
		results := spawner.Run(ctx, subtasks)

		agg := &agent.RunnerResult{Success: true, Output: agent.FormatResults(results)}
		for _, r := range results {
			if !r.Success {
				agg.Success = false
			}
		}
		return "microagent", agg, nil
	}

	// Default: the iterative tool-calling loop.
	runner := agent.NewRunner(c.provider, exec, agent.RunnerOptions{
		MaxIterations:    c.cfg.Agent.MaxIterations,
		Model:            c.cfg.Model.Name,
		MaxTokens:        c.cfg.Model.MaxTokens,
		Temperature:      c.cfg.Model.Temperature,
		OnProgress:       onProgress,
		CompactionTokens: c.cfg.Agent.CompactionTokens,
		CompactionTail:   c.cfg.Agent.CompactionTail,
	})
	res, err := runner.Run(ctx, goal)
	return "runner", res, err
}

func (c *Coordinator) finish(taskID, goal, strategy string, res *agent.RunnerResult, start time.Time) {
	if res == nil {
		res = &agent.RunnerResult{}
	}
	if c.audit != nil {
		if err := c.audit.SetTaskStrategy(taskID, strategy); err != nil {
			slog.Warn("Failed to record task strategy", "error", err)
		}
		if err := c.audit.CompleteTask(taskID, res.Output, res.Success, res.Iterations, res.ToolCalls, res.PromptTokens, res.OutputTokens); err != nil {
			slog.Warn("Failed to record task completion", "error", err)
		}
	}
	if c.tracer != nil {
		c.tracer.Publish(trace.Span{
			TraceID:   taskID,
			SpanType:  "task",
			Title:     goal,
			Content:   res.Output,
			StartedAt: start,
			EndedAt:   time.Now(),
		})
	}
	slog.Info("Task finished", "task_id", taskID, "strategy", strategy, "success", res.Success, "duration", time.Since(start).Truncate(time.Millisecond))
}
