package trace

import (
	"sync"
	"testing"
	"time"
)

// newCapturePublisher builds a publisher whose ship step records spans
// instead of writing to a broker.
func newCapturePublisher(queueSize int) (*Publisher, *[]Span, *sync.Mutex) {
	var mu sync.Mutex
	var shipped []Span
	p := &Publisher{
		queue:   make(chan Span, queueSize),
		done:    make(chan struct{}),
		enabled: true,
	}
	p.ship = func(s Span) {
		mu.Lock()
		shipped = append(shipped, s)
		mu.Unlock()
	}
	go p.run()
	return p, &shipped, &mu
}

func TestDisabledPublisherIsNoOp(t *testing.T) {
	p := NewPublisher(nil, "droidclaw.traces", 8)
	if p.Active() {
		t.Error("publisher without brokers should be inactive")
	}
	p.Publish(Span{TraceID: "t1", SpanType: "task"})
	p.Write("t1", "subtask", "done")
	if err := p.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestPublishDrainsOnClose(t *testing.T) {
	p, shipped, mu := newCapturePublisher(8)

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p.Publish(Span{TraceID: "t1", SpanType: "task", StartedAt: start, EndedAt: start.Add(1500 * time.Millisecond)})
	p.Publish(Span{TraceID: "t1", SpanType: "tool_call", StartedAt: start, EndedAt: start.Add(30 * time.Millisecond)})
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(*shipped) != 2 {
		t.Fatalf("expected 2 spans drained, got %d", len(*shipped))
	}
	if (*shipped)[0].DurationMs != 1500 {
		t.Errorf("expected duration filled from timestamps, got %d", (*shipped)[0].DurationMs)
	}
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	var mu sync.Mutex
	var shipped []Span
	p := &Publisher{
		queue:   make(chan Span, 1),
		done:    make(chan struct{}),
		enabled: true,
	}
	p.ship = func(s Span) {
		<-block
		mu.Lock()
		shipped = append(shipped, s)
		mu.Unlock()
	}
	go p.run()

	// First span is picked up by the worker, second fills the queue,
	// third must be dropped rather than block.
	p.Publish(Span{TraceID: "a"})
	time.Sleep(20 * time.Millisecond)
	p.Publish(Span{TraceID: "b"})
	doneCh := make(chan struct{})
	go func() {
		p.Publish(Span{TraceID: "c"})
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	close(block)
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(shipped) > 2 {
		t.Errorf("expected the overflow span to be dropped, got %d shipped", len(shipped))
	}
}

func TestWriteProducesSubtaskSpan(t *testing.T) {
	p, shipped, mu := newCapturePublisher(8)
	p.Write("trace-9", "check weather", "Sunny, 21C")
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(*shipped) != 1 {
		t.Fatalf("expected 1 span, got %d", len(*shipped))
	}
	s := (*shipped)[0]
	if s.SpanType != "subtask" || s.TraceID != "trace-9" || s.Content != "Sunny, 21C" {
		t.Errorf("unexpected span: %+v", s)
	}
}
