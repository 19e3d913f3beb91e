// Package trace publishes task execution spans to Kafka for external
// observability. Publishing is fire-and-forget: a slow or absent broker
// never blocks the agent loop.
package trace

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Span is one published unit of work within a task.
type Span struct {
	TraceID    string    `json:"trace_id"`
	SpanType   string    `json:"span_type"` // task, iteration, tool_call, subtask
	Title      string    `json:"title"`
	Content    string    `json:"content,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	DurationMs int64     `json:"duration_ms"`
}

// Publisher ships spans to a Kafka topic through a bounded queue.
type Publisher struct {
	writer  *kafka.Writer
	queue   chan Span
	done    chan struct{}
	once    sync.Once
	enabled bool
	ship    func(Span)
}

// NewPublisher creates a publisher for the given brokers and topic. An
// empty broker list yields a disabled publisher whose Publish is a no-op.
func NewPublisher(brokers []string, topic string, queueSize int) *Publisher {
	if len(brokers) == 0 || topic == "" {
		return &Publisher{}
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	p := &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		queue:   make(chan Span, queueSize),
		done:    make(chan struct{}),
		enabled: true,
	}
	p.ship = p.shipKafka
	go p.run()
	return p
}

// Active reports whether spans are actually being shipped.
func (p *Publisher) Active() bool {
	return p.enabled
}

// Publish enqueues a span without blocking. The span is dropped when the
// queue is full or the publisher is disabled.
func (p *Publisher) Publish(span Span) {
	if !p.enabled {
		return
	}
	if span.DurationMs == 0 && !span.EndedAt.IsZero() {
		span.DurationMs = span.EndedAt.Sub(span.StartedAt).Milliseconds()
	}
	select {
	case p.queue <- span:
	default:
		slog.Warn("Trace queue full, dropping span", "span_type", span.SpanType, "trace_id", span.TraceID)
	}
}

// Write satisfies the shared-memory writer used by micro-agent spawners:
// subtask results become spans.
func (p *Publisher) Write(traceID, title, content string) {
	p.Publish(Span{
		TraceID:   traceID,
		SpanType:  "subtask",
		Title:     title,
		Content:   content,
		StartedAt: time.Now(),
		EndedAt:   time.Now(),
	})
}

func (p *Publisher) run() {
	defer close(p.done)
	for span := range p.queue {
		p.ship(span)
	}
}

func (p *Publisher) shipKafka(span Span) {
	data, err := json.Marshal(span)
	if err != nil {
		slog.Warn("Failed to marshal span", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(span.TraceID),
		Value: data,
		Time:  span.StartedAt,
	})
	if err != nil {
		slog.Warn("Failed to publish span", "trace_id", span.TraceID, "error", err)
	}
}

// Close stops accepting spans, drains what is queued, and closes the
// writer.
func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	var err error
	p.once.Do(func() {
		close(p.queue)
		<-p.done
		if p.writer != nil {
			err = p.writer.Close()
		}
	})
	return err
}
