package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/DroidClaw/DroidClaw/internal/bus"
	"github.com/DroidClaw/DroidClaw/internal/hooks"
	"github.com/DroidClaw/DroidClaw/internal/loopdetect"
	"github.com/DroidClaw/DroidClaw/internal/timeline"
	"github.com/DroidClaw/DroidClaw/internal/tools"
)

// AuditStore is the subset of the timeline service the executor needs.
type AuditStore interface {
	AddStep(step timeline.Step) error
}

// ToolExecutor funnels every tool call through the hook pipeline, records
// it with the loop detector, and writes the audit trail. The runner, the
// plan engine, and micro-agents all execute through the same instance so
// that policy and detection see the full call stream of a task.
type ToolExecutor struct {
	Registry *tools.Registry
	Hooks    *hooks.Pipeline
	Detector *loopdetect.Detector
	Audit    AuditStore
	Bus      *bus.ProgressBus
	TaskID   string

	mu  sync.Mutex
	seq int
}

// Execute runs one tool call end to end: before hooks (which may mutate
// arguments or block), the tool itself, then after hooks. The returned
// result is never nil.
func (e *ToolExecutor) Execute(ctx context.Context, caller, name string, args map[string]any) (*tools.Result, time.Duration) {
	info := hooks.CallInfo{Tool: name, Args: args, Caller: caller}

	start := time.Now()
	var result *tools.Result
	if e.Hooks != nil {
		blocked, reason, mutated := e.Hooks.RunBefore(ctx, info)
		if blocked {
			result = tools.Errorf("tool call blocked: %s", reason)
		} else {
			args = mutated
			info.Args = mutated
		}
	}
	if result == nil {
		result = e.Registry.Execute(ctx, name, args)
	}
	duration := time.Since(start)
	if e.Hooks != nil {
		result = e.Hooks.RunAfter(ctx, info, result, duration)
	}

	if e.Detector != nil {
		e.Detector.Record(name, args, result.Content)
	}
	e.record(caller, name, args, result, duration)
	return result, duration
}

func (e *ToolExecutor) record(caller, name string, args map[string]any, result *tools.Result, duration time.Duration) {
	success := !result.IsError()
	if e.Audit != nil && e.TaskID != "" {
		e.mu.Lock()
		e.seq++
		seq := e.seq
		e.mu.Unlock()
		argsJSON, err := json.Marshal(args)
		if err != nil {
			argsJSON = []byte("{}")
		}
		_ = e.Audit.AddStep(timeline.Step{
			TaskID:     e.TaskID,
			Seq:        seq,
			Caller:     caller,
			Tool:       name,
			ArgsJSON:   string(argsJSON),
			Result:     truncate(result.Content, stepResultLimit),
			Success:    success,
			DurationMs: duration.Milliseconds(),
		})
	}
	if e.Bus != nil {
		e.Bus.Publish(bus.ProgressEvent{
			Kind:    bus.EventToolResult,
			TaskID:  e.TaskID,
			Tool:    name,
			Detail:  truncate(result.Content, stepResultLimit),
			Success: success,
		})
	}
}

// stepResultLimit caps stored result text so screenshots and HTTP bodies
// do not bloat the audit trail.
const stepResultLimit = 200

// truncate shortens s to at most limit bytes, ellipsis included.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return s[:limit]
	}
	return s[:limit-3] + "..."
}
