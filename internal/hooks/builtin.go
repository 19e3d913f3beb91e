package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DroidClaw/DroidClaw/internal/tools"
)

// CallRecord is one entry in the call log ring.
type CallRecord struct {
	Tool     string
	Caller   string
	Success  bool
	Duration time.Duration
	At       time.Time
}

// CallLog keeps the most recent tool calls in a bounded ring buffer.
// Success is inferred from the result's error marker.
type CallLog struct {
	mu       sync.Mutex
	records  []CallRecord
	capacity int
}

// NewCallLog creates a call log holding up to capacity records.
func NewCallLog(capacity int) *CallLog {
	if capacity <= 0 {
		capacity = 200
	}
	return &CallLog{capacity: capacity}
}

// Hook returns the after hook that feeds the log. Priority 100 so it
// observes the final result after any rewriting hooks.
func (l *CallLog) Hook() Hook {
	return Hook{
		Name:     "call_log",
		Priority: 100,
		After: func(_ context.Context, info CallInfo, result *tools.Result, duration time.Duration) (*tools.Result, error) {
			l.add(CallRecord{
				Tool:     info.Tool,
				Caller:   info.Caller,
				Success:  result != nil && !result.IsError(),
				Duration: duration,
				At:       time.Now(),
			})
			return nil, nil
		},
	}
}

func (l *CallLog) add(rec CallRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	if len(l.records) > l.capacity {
		l.records = l.records[len(l.records)-l.capacity:]
	}
}

// Records returns a copy of the logged calls, oldest first.
func (l *CallLog) Records() []CallRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CallRecord, len(l.records))
	copy(out, l.records)
	return out
}

// NewDenyHook blocks any tool on the deny list. Runs at priority 0 so
// denied tools never reach later hooks.
func NewDenyHook(denied []string) Hook {
	set := make(map[string]bool, len(denied))
	for _, name := range denied {
		set[name] = true
	}
	return Hook{
		Name:     "deny_list",
		Priority: 0,
		Before: func(_ context.Context, info CallInfo) (Verdict, error) {
			if set[info.Tool] {
				return Verdict{Block: true, Reason: fmt.Sprintf("tool %s is denied by policy", info.Tool)}, nil
			}
			return Verdict{}, nil
		},
	}
}

// RateLimiter blocks calls once the per-window budget is spent. The window
// slides: a call is admitted when fewer than limit calls happened in the
// trailing window.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	times  []time.Time
	now    func() time.Time
}

// NewRateLimiter creates a limiter admitting limit calls per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{limit: limit, window: window, now: time.Now}
}

// Hook returns the before hook enforcing the limit, at priority 10.
func (rl *RateLimiter) Hook() Hook {
	return Hook{
		Name:     "rate_limit",
		Priority: 10,
		Before: func(_ context.Context, info CallInfo) (Verdict, error) {
			if !rl.admit() {
				return Verdict{
					Block:  true,
					Reason: fmt.Sprintf("rate limit exceeded: %d calls per %s", rl.limit, rl.window),
				}, nil
			}
			return Verdict{}, nil
		},
	}
}

func (rl *RateLimiter) admit() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.window)
	keep := rl.times[:0]
	for _, t := range rl.times {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	rl.times = keep
	if len(rl.times) >= rl.limit {
		return false
	}
	rl.times = append(rl.times, rl.now())
	return true
}
