// Package bus carries progress events from running tasks to observers
// (CLI rendering, trace publisher). Publishing never blocks the agent:
// events are dropped when an observer falls behind.
package bus

import (
	"log/slog"
	"sync"
	"time"
)

// EventKind classifies a progress event.
type EventKind string

const (
	EventTaskStarted   EventKind = "task_started"
	EventIteration     EventKind = "iteration"
	EventToolCall      EventKind = "tool_call"
	EventToolResult    EventKind = "tool_result"
	EventLoopWarning   EventKind = "loop_warning"
	EventSubtaskUpdate EventKind = "subtask_update"
	EventTaskDone      EventKind = "task_done"
)

// ProgressEvent is a single observation from a running task.
type ProgressEvent struct {
	Kind    EventKind
	TaskID  string
	Tool    string
	Detail  string
	Success bool
	At      time.Time
}

// ProgressBus fans progress events out to subscribers over bounded
// channels.
type ProgressBus struct {
	mu      sync.Mutex
	subs    []chan ProgressEvent
	size    int
	closed  bool
	dropped int
}

// NewProgressBus creates a bus whose subscriber channels buffer size
// events each.
func NewProgressBus(size int) *ProgressBus {
	if size <= 0 {
		size = 100
	}
	return &ProgressBus{size: size}
}

// Subscribe registers a new observer and returns its channel. The channel
// is closed when the bus closes.
func (b *ProgressBus) Subscribe() <-chan ProgressEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan ProgressEvent, b.size)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers the event to every subscriber without blocking. A full
// subscriber channel drops the event for that subscriber.
func (b *ProgressBus) Publish(ev ProgressEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped++
			if b.dropped%100 == 1 {
				slog.Warn("Progress bus dropping events, observer too slow", "dropped", b.dropped)
			}
		}
	}
}

// Dropped returns how many events were dropped across all subscribers.
func (b *ProgressBus) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close closes all subscriber channels. Events already buffered remain
// readable; subscribers drain until the channel reports closed.
func (b *ProgressBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
