// Package agent contains the iterative execution core: the runner loop
// that alternates model calls and tool execution, the shared tool
// executor, conversation compaction, and the micro-agent spawner.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DroidClaw/DroidClaw/internal/bus"
	"github.com/DroidClaw/DroidClaw/internal/loopdetect"
	"github.com/DroidClaw/DroidClaw/internal/provider"
	"github.com/DroidClaw/DroidClaw/internal/tools"
)

const (
	defaultMaxIterations = 20
	defaultMaxTokens     = 4096

	// messageResultLimit caps tool output fed back into the conversation.
	messageResultLimit = 4000
)

const defaultSystemPrompt = `You are DroidClaw, an agent controlling an Android device through tools.
Work step by step toward the user's goal. Take a screenshot when you need
to see the screen. When the goal is achieved, reply with a short summary
and no further tool calls.`

// ProgressFunc observes runner progress. Callbacks must not block; a
// panicking callback is ignored.
type ProgressFunc func(ev bus.ProgressEvent)

// RunnerOptions tune a single runner instance.
type RunnerOptions struct {
	MaxIterations    int
	SystemPrompt     string
	Model            string
	MaxTokens        int
	Temperature      float64
	OnProgress       ProgressFunc
	Caller           string
	CompactionTokens int
	CompactionTail   int
}

// ToolStep is one executed tool call in a run, for reporting.
type ToolStep struct {
	Tool     string
	Args     map[string]any
	Result   string
	Success  bool
	Duration time.Duration
}

// RunnerResult is the outcome of a run.
type RunnerResult struct {
	Success      bool
	Output       string
	Stopped      string // "completed" or "max_iterations"
	Iterations   int
	ToolCalls    int
	Steps        []ToolStep
	PromptTokens int
	OutputTokens int
	Duration     time.Duration
	// LastImage is the most recent image a tool returned during the run,
	// typically the final screenshot. Nil when no tool captured one.
	LastImage *tools.Image
}

// Runner drives the iterative tool-calling loop for one goal.
type Runner struct {
	provider provider.LLMProvider
	executor *ToolExecutor
	opts     RunnerOptions
}

// NewRunner creates a runner over the given provider and executor.
func NewRunner(p provider.LLMProvider, exec *ToolExecutor, opts RunnerOptions) *Runner {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	if opts.Caller == "" {
		opts.Caller = "runner"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.CompactionTokens <= 0 {
		opts.CompactionTokens = compactionThreshold
	}
	if opts.CompactionTail <= 0 {
		opts.CompactionTail = compactionTail
	}
	return &Runner{provider: p, executor: exec, opts: opts}
}

// Run executes the loop until the model stops calling tools or the
// iteration budget is spent. The error return covers infrastructure
// failures only; a goal the agent could not achieve is reported through
// RunnerResult.Success.
func (r *Runner) Run(ctx context.Context, goal string) (*RunnerResult, error) {
	messages := []provider.Message{
		{Role: "system", Content: r.opts.SystemPrompt},
		{Role: "user", Content: goal},
	}
	res := &RunnerResult{}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()
	r.emit(bus.ProgressEvent{Kind: bus.EventTaskStarted, TaskID: r.executor.TaskID, Detail: goal})

	for iter := 1; iter <= r.opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Iterations = iter
		r.emit(bus.ProgressEvent{Kind: bus.EventIteration, TaskID: r.executor.TaskID, Detail: fmt.Sprintf("iteration %d/%d", iter, r.opts.MaxIterations)})

		if estimateTokens(messages) > r.opts.CompactionTokens {
			before := len(messages)
			messages = sanitizeTail(compactMessages(messages, r.opts.CompactionTail))
			slog.Debug("Compacted conversation buffer", "before", before, "after", len(messages))
		}

		resp, err := r.provider.Chat(ctx, &provider.ChatRequest{
			Messages:    messages,
			Tools:       r.executor.Registry.Definitions(),
			Model:       r.opts.Model,
			MaxTokens:   r.opts.MaxTokens,
			Temperature: r.opts.Temperature,
		})
		if err != nil {
			return res, fmt.Errorf("model call failed: %w", err)
		}
		res.PromptTokens += resp.Usage.PromptTokens
		res.OutputTokens += resp.Usage.CompletionTokens

		if len(resp.ToolCalls) == 0 {
			res.Success = true
			res.Stopped = "completed"
			res.Output = resp.Content
			r.emit(bus.ProgressEvent{Kind: bus.EventTaskDone, TaskID: r.executor.TaskID, Detail: res.Output, Success: true})
			return res, nil
		}

		messages = append(messages, provider.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		messages = append(messages, r.dispatch(ctx, resp.ToolCalls, res)...)
	}

	res.Success = false
	res.Stopped = "max_iterations"
	res.Output = fmt.Sprintf("Stopped after %d iterations without completing the goal.", r.opts.MaxIterations)
	r.emit(bus.ProgressEvent{Kind: bus.EventTaskDone, TaskID: r.executor.TaskID, Detail: res.Output, Success: false})
	return res, nil
}

// dispatch executes one batch of tool calls and returns their tool-role
// messages in the batch's original order. Phone-class calls run strictly
// sequentially; everything else fans out. A critical loop verdict stops
// the batch: the flagged call and everything after it are answered with
// guidance instead of being executed.
func (r *Runner) dispatch(ctx context.Context, calls []provider.ToolCall, res *RunnerResult) []provider.Message {
	verdicts := make([]loopdetect.CheckResult, len(calls))
	limit := len(calls)
	for i, c := range calls {
		verdicts[i] = r.check(c)
		if verdicts[i].Level == loopdetect.LevelCritical {
			limit = i
			slog.Warn("Loop detected, stopping batch", "tool", c.Name, "message", verdicts[i].Message)
			r.emit(bus.ProgressEvent{Kind: bus.EventLoopWarning, TaskID: r.executor.TaskID, Tool: c.Name, Detail: verdicts[i].Message})
			break
		}
	}

	outcomes := make([]*tools.Result, len(calls))
	steps := make([]ToolStep, len(calls))

	var wg sync.WaitGroup
	for i := 0; i < limit; i++ {
		if tools.IsPhoneClass(calls[i].Name) {
			continue
		}
		wg.Add(1)
		go func(i int, c provider.ToolCall) {
			defer wg.Done()
			outcomes[i], steps[i] = r.execute(ctx, c)
		}(i, calls[i])
	}
	for i := 0; i < limit; i++ {
		if !tools.IsPhoneClass(calls[i].Name) {
			continue
		}
		outcomes[i], steps[i] = r.execute(ctx, calls[i])
	}
	wg.Wait()

	msgs := make([]provider.Message, 0, len(calls))
	for i, c := range calls {
		msg := provider.Message{Role: "tool", ToolCallID: c.ID}
		switch {
		case i >= limit:
			reason := verdicts[limit].Message
			if i < len(verdicts) && verdicts[i].Level == loopdetect.LevelCritical {
				reason = verdicts[i].Message
			}
			msg.Content = fmt.Sprintf("Call not executed: %s. Try a different approach.", reason)
		default:
			result := outcomes[i]
			msg.Content = truncate(result.Content, messageResultLimit)
			if result.Image != nil {
				msg.Image = &provider.Image{Base64: result.Image.Base64, MimeType: result.Image.MimeType}
				res.LastImage = result.Image
			}
			if verdicts[i].Level == loopdetect.LevelWarning {
				msg.Content += "\n\nNote: " + verdicts[i].Message
			}
			res.ToolCalls++
			res.Steps = append(res.Steps, steps[i])
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func (r *Runner) check(c provider.ToolCall) loopdetect.CheckResult {
	if r.executor.Detector == nil {
		return loopdetect.CheckResult{Level: loopdetect.LevelOK}
	}
	return r.executor.Detector.Check(c.Name, c.Arguments)
}

func (r *Runner) execute(ctx context.Context, c provider.ToolCall) (*tools.Result, ToolStep) {
	r.emit(bus.ProgressEvent{Kind: bus.EventToolCall, TaskID: r.executor.TaskID, Tool: c.Name})
	result, duration := r.executor.Execute(ctx, r.opts.Caller, c.Name, c.Arguments)
	// The executor already published the result on the bus; the callback
	// still needs to hear about it.
	r.callback(bus.ProgressEvent{
		Kind:    bus.EventToolResult,
		TaskID:  r.executor.TaskID,
		Tool:    c.Name,
		Detail:  truncate(result.Content, stepResultLimit),
		Success: !result.IsError(),
	})
	return result, ToolStep{
		Tool:     c.Name,
		Args:     c.Arguments,
		Result:   truncate(result.Content, stepResultLimit),
		Success:  !result.IsError(),
		Duration: duration,
	}
}

// emit publishes to the bus and invokes the progress callback.
func (r *Runner) emit(ev bus.ProgressEvent) {
	if r.executor.Bus != nil {
		r.executor.Bus.Publish(ev)
	}
	r.callback(ev)
}

// callback invokes the progress callback. A broken callback must not
// take the loop down with it.
func (r *Runner) callback(ev bus.ProgressEvent) {
	if r.opts.OnProgress == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("Progress callback panicked", "panic", rec)
		}
	}()
	r.opts.OnProgress(ev)
}
