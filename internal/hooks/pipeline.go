// Package hooks provides the before/after interception pipeline that every
// tool call passes through. Hooks can mutate arguments, block execution, or
// replace results; a failing hook is skipped rather than halting the agent.
package hooks

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/DroidClaw/DroidClaw/internal/tools"
)

// CallInfo identifies the tool call flowing through the pipeline.
type CallInfo struct {
	Tool   string
	Args   map[string]any
	Caller string // "runner", "planner", "microagent"
}

// Verdict is the outcome of a before hook. A nil Args leaves the arguments
// unchanged; a non-nil Args replaces them for downstream hooks and execution.
type Verdict struct {
	Block  bool
	Reason string
	Args   map[string]any
}

// BeforeFunc runs before tool execution.
type BeforeFunc func(ctx context.Context, info CallInfo) (Verdict, error)

// AfterFunc runs after tool execution. A non-nil returned result replaces
// the current one (redact, truncate, annotate).
type AfterFunc func(ctx context.Context, info CallInfo, result *tools.Result, duration time.Duration) (*tools.Result, error)

// Hook is a named interceptor. Before and After are both optional.
type Hook struct {
	Name     string
	Priority int // lower runs first
	Before   BeforeFunc
	After    AfterFunc
}

// Pipeline holds hooks in a single list sorted ascending by priority.
type Pipeline struct {
	mu    sync.Mutex
	hooks []Hook
}

// NewPipeline creates an empty hook pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Add registers a hook. Registering an existing name replaces the prior
// definition; the list is re-sorted on every registration.
func (p *Pipeline) Add(h Hook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.hooks {
		if p.hooks[i].Name == h.Name {
			p.hooks[i] = h
			p.sortLocked()
			return
		}
	}
	p.hooks = append(p.hooks, h)
	p.sortLocked()
}

// Remove unregisters a hook by name.
func (p *Pipeline) Remove(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.hooks {
		if p.hooks[i].Name == name {
			p.hooks = append(p.hooks[:i], p.hooks[i+1:]...)
			return true
		}
	}
	return false
}

// List returns the hooks in execution order.
func (p *Pipeline) List() []Hook {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Hook, len(p.hooks))
	copy(out, p.hooks)
	return out
}

func (p *Pipeline) sortLocked() {
	sort.SliceStable(p.hooks, func(i, j int) bool {
		return p.hooks[i].Priority < p.hooks[j].Priority
	})
}

// RunBefore runs all before hooks in priority order. Each hook sees the
// arguments as mutated by its predecessors; the first blocking hook
// short-circuits the chain. Hook errors and panics are logged and skipped.
func (p *Pipeline) RunBefore(ctx context.Context, info CallInfo) (blocked bool, reason string, args map[string]any) {
	args = info.Args
	for _, h := range p.List() {
		if h.Before == nil {
			continue
		}
		verdict, err := runBeforeSafe(ctx, h, CallInfo{Tool: info.Tool, Args: args, Caller: info.Caller})
		if err != nil {
			slog.Warn("Before hook failed, skipping", "hook", h.Name, "tool", info.Tool, "error", err)
			continue
		}
		if verdict.Args != nil {
			args = verdict.Args
		}
		if verdict.Block {
			return true, verdict.Reason, args
		}
	}
	return false, "", args
}

// RunAfter runs all after hooks in priority order over the actual result.
// Each hook may replace the result; failures are logged and skipped.
func (p *Pipeline) RunAfter(ctx context.Context, info CallInfo, result *tools.Result, duration time.Duration) *tools.Result {
	for _, h := range p.List() {
		if h.After == nil {
			continue
		}
		replaced, err := runAfterSafe(ctx, h, info, result, duration)
		if err != nil {
			slog.Warn("After hook failed, skipping", "hook", h.Name, "tool", info.Tool, "error", err)
			continue
		}
		if replaced != nil {
			result = replaced
		}
	}
	return result
}

func runBeforeSafe(ctx context.Context, h Hook, info CallInfo) (v Verdict, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			v = Verdict{}
			err = panicError(h.Name, rec)
		}
	}()
	return h.Before(ctx, info)
}

func runAfterSafe(ctx context.Context, h Hook, info CallInfo, result *tools.Result, duration time.Duration) (r *tools.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r = nil
			err = panicError(h.Name, rec)
		}
	}()
	return h.After(ctx, info, result, duration)
}

type hookPanic struct {
	name  string
	value any
}

func (e *hookPanic) Error() string {
	return "hook " + e.name + " panicked"
}

func panicError(name string, value any) error {
	return &hookPanic{name: name, value: value}
}
