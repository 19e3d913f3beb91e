package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/DroidClaw/DroidClaw/internal/bus"
	"github.com/DroidClaw/DroidClaw/internal/provider"
)

// MicroTask is one heuristically extracted subtask of a goal.
type MicroTask struct {
	ID            string
	Description   string
	Parent        string // the compound goal this subtask was split from
	RequiresPhone bool
	Priority      int // higher runs earlier among phone tasks
}

// SubtaskResult pairs a micro task with its nested run outcome.
type SubtaskResult struct {
	Task    MicroTask
	Success bool
	Output  string
}

// MemoryWriter receives subtask results as they complete, so sibling
// observers (trace publisher, shared task memory) see partial progress.
type MemoryWriter interface {
	Write(traceID, title, content string)
}

// connectives split a goal into ordered fragments. Matched case
// insensitively, longest first.
var connectives = []string{
	", then ",
	" and then ",
	" then ",
	" after that ",
	", after that ",
	" next ",
	" followed by ",
	" finally ",
	", finally ",
}

// phoneVerbs mark a fragment as needing the device surface.
var phoneVerbs = []string{
	"tap", "open", "launch", "type", "swipe", "scroll", "press",
	"screenshot", "click", "enter", "dismiss", "unlock", "navigate",
	"install", "uninstall", "toggle", "turn on", "turn off", "send",
	"call", "dial", "play", "pause", "search",
}

// knownApps also imply device interaction even without an action verb.
var knownApps = []string{
	"calculator", "clock", "settings", "camera", "chrome", "gmail",
	"maps", "photos", "calendar", "contacts", "phone app", "messages",
	"play store", "youtube", "spotify", "whatsapp",
}

// minFragmentLen filters out conjunction splits that are too short to be
// meaningful subtasks ("and go").
const minFragmentLen = 12

// Decompose splits a compound goal into ordered micro tasks. It returns
// nil when the goal does not decompose: a single-intent goal should run
// through the normal runner, not a spawner.
func Decompose(goal string) []MicroTask {
	fragments := splitOnConnectives(goal)
	if len(fragments) < 2 {
		// A goal naming several apps is compound even when no connective
		// gives a clean boundary ("Open Calculator and Clock").
		fragments = syntheticAppFragments(goal)
	}
	if len(fragments) < 2 {
		return nil
	}

	tasks := make([]MicroTask, 0, len(fragments))
	n := len(fragments)
	for i, frag := range fragments {
		tasks = append(tasks, MicroTask{
			ID:            uuid.NewString(),
			Description:   frag,
			Parent:        goal,
			RequiresPhone: requiresPhone(frag),
			Priority:      n - i,
		})
	}
	return tasks
}

// syntheticAppFragments produces one "handle the X part" subtask per
// mentioned app, ordered by position in the goal. Returns nil unless at
// least two known apps are named.
func syntheticAppFragments(goal string) []string {
	apps := appMentions(goal)
	if len(apps) < 2 {
		return nil
	}
	fragments := make([]string, 0, len(apps))
	for _, app := range apps {
		fragments = append(fragments, fmt.Sprintf("handle the %s part of: %s", app, goal))
	}
	return fragments
}

// appMentions lists the known apps the goal names, in mention order.
func appMentions(goal string) []string {
	lower := strings.ToLower(goal)
	var apps []string
	for _, app := range knownApps {
		if strings.Contains(lower, app) {
			apps = append(apps, app)
		}
	}
	sort.SliceStable(apps, func(i, j int) bool {
		return strings.Index(lower, apps[i]) < strings.Index(lower, apps[j])
	})
	return apps
}

func splitOnConnectives(goal string) []string {
	parts := []string{goal}
	for _, conn := range connectives {
		var next []string
		for _, p := range parts {
			next = append(next, splitInsensitive(p, conn)...)
		}
		parts = next
	}
	// Conservative "and" split: only keep it when both sides are
	// substantial enough to stand alone as subtasks.
	var out []string
	for _, p := range parts {
		halves := splitInsensitive(p, " and ")
		ok := len(halves) > 1
		for _, h := range halves {
			if len(strings.TrimSpace(h)) < minFragmentLen {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, halves...)
		} else {
			out = append(out, p)
		}
	}

	var cleaned []string
	for _, p := range out {
		p = strings.Trim(strings.TrimSpace(p), ",.;")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return cleaned
}

func splitInsensitive(s, sep string) []string {
	lower := strings.ToLower(s)
	sepLower := strings.ToLower(sep)
	var parts []string
	for {
		idx := strings.Index(lower, sepLower)
		if idx < 0 {
			parts = append(parts, s)
			return parts
		}
		parts = append(parts, s[:idx])
		s = s[idx+len(sep):]
		lower = lower[idx+len(sepLower):]
	}
}

func requiresPhone(fragment string) bool {
	lower := strings.ToLower(fragment)
	for _, verb := range phoneVerbs {
		if containsWord(lower, verb) {
			return true
		}
	}
	for _, app := range knownApps {
		if strings.Contains(lower, app) {
			return true
		}
	}
	return false
}

func containsWord(s, word string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isLetter(s[i-1])
		afterIdx := i + len(word)
		after := afterIdx >= len(s) || !isLetter(s[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(word)
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Spawner runs micro tasks in nested runners. Phone tasks run strictly
// one at a time in priority order; everything else fans out and joins.
type Spawner struct {
	provider provider.LLMProvider
	executor *ToolExecutor
	budget   int
	memory   MemoryWriter
	traceID  string

	mu     sync.Mutex
	active map[string]bool
}

// NewSpawner creates a spawner. budget is the parent's iteration budget;
// each micro task gets a reduced share. memory may be nil.
func NewSpawner(p provider.LLMProvider, exec *ToolExecutor, budget int, memory MemoryWriter, traceID string) *Spawner {
	if budget <= 0 {
		budget = defaultMaxIterations
	}
	return &Spawner{
		provider: p,
		executor: exec,
		budget:   budget,
		memory:   memory,
		traceID:  traceID,
		active:   make(map[string]bool),
	}
}

// subtaskBudget gives each micro task a reduced iteration allowance while
// keeping enough room to do real work.
func (s *Spawner) subtaskBudget() int {
	b := s.budget / 2
	if b < 4 {
		b = 4
	}
	return b
}

// Active returns the descriptions of currently running micro tasks.
func (s *Spawner) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.active))
	for desc := range s.active {
		out = append(out, desc)
	}
	sort.Strings(out)
	return out
}

// Run executes all micro tasks and returns their results in the tasks'
// original order.
func (s *Spawner) Run(ctx context.Context, tasks []MicroTask) []SubtaskResult {
	results := make([]SubtaskResult, len(tasks))
	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		index[t.ID] = i
	}

	var phone, parallel []MicroTask
	for _, t := range tasks {
		if t.RequiresPhone {
			phone = append(phone, t)
		} else {
			parallel = append(parallel, t)
		}
	}
	sort.SliceStable(phone, func(i, j int) bool { return phone[i].Priority > phone[j].Priority })

	var wg sync.WaitGroup
	for _, t := range parallel {
		wg.Add(1)
		go func(t MicroTask) {
			defer wg.Done()
			results[index[t.ID]] = s.runOne(ctx, t)
		}(t)
	}
	for _, t := range phone {
		results[index[t.ID]] = s.runOne(ctx, t)
	}
	wg.Wait()
	return results
}

func (s *Spawner) runOne(ctx context.Context, t MicroTask) SubtaskResult {
	s.mu.Lock()
	s.active[t.Description] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, t.Description)
		s.mu.Unlock()
	}()

	slog.Info("Spawning micro agent", "task", t.Description, "phone", t.RequiresPhone, "budget", s.subtaskBudget())
	if s.executor.Bus != nil {
		s.executor.Bus.Publish(bus.ProgressEvent{Kind: bus.EventSubtaskUpdate, TaskID: s.executor.TaskID, Detail: "started: " + t.Description})
	}

	runner := NewRunner(s.provider, s.executor, RunnerOptions{
		MaxIterations: s.subtaskBudget(),
		Caller:        "microagent",
		SystemPrompt: defaultSystemPrompt + "\n\nYou are handling one narrow subtask of a larger goal. " +
			"Do only what the subtask asks and stop as soon as it is done.",
	})
	goal := t.Description
	if t.Parent != "" && t.Parent != t.Description {
		goal += "\n\nThe subtask belongs to this larger task (context only): " + t.Parent
	}
	res, err := runner.Run(ctx, goal)
	out := SubtaskResult{Task: t}
	if err != nil {
		out.Output = "subtask failed: " + err.Error()
	} else {
		out.Success = res.Success
		out.Output = res.Output
	}

	if s.memory != nil {
		s.memory.Write(s.traceID, t.Description, out.Output)
	}
	if s.executor.Bus != nil {
		s.executor.Bus.Publish(bus.ProgressEvent{Kind: bus.EventSubtaskUpdate, TaskID: s.executor.TaskID, Detail: "finished: " + t.Description, Success: out.Success})
	}
	return out
}

// FormatResults renders subtask outcomes as a report for the user.
func FormatResults(results []SubtaskResult) string {
	var b strings.Builder
	for _, r := range results {
		mark := "✗"
		if r.Success {
			mark = "✓"
		}
		fmt.Fprintf(&b, "%s %s", mark, r.Task.Description)
		if r.Output != "" {
			fmt.Fprintf(&b, ": %s", truncate(r.Output, 150))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
