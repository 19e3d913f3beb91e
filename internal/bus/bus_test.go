package bus

import "testing"

func TestPublishSubscribe(t *testing.T) {
	b := NewProgressBus(4)
	ch := b.Subscribe()

	b.Publish(ProgressEvent{Kind: EventTaskStarted, TaskID: "t1"})
	b.Publish(ProgressEvent{Kind: EventToolCall, TaskID: "t1", Tool: "adb_tap"})

	ev := <-ch
	if ev.Kind != EventTaskStarted || ev.TaskID != "t1" {
		t.Errorf("unexpected first event: %+v", ev)
	}
	ev = <-ch
	if ev.Kind != EventToolCall || ev.Tool != "adb_tap" {
		t.Errorf("unexpected second event: %+v", ev)
	}
	if ev.At.IsZero() {
		t.Error("Publish should stamp the event time")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewProgressBus(2)
	b.Subscribe() // never drained

	for i := 0; i < 10; i++ {
		b.Publish(ProgressEvent{Kind: EventIteration})
	}
	if got := b.Dropped(); got != 8 {
		t.Errorf("expected 8 dropped events, got %d", got)
	}
}

func TestCloseDrains(t *testing.T) {
	b := NewProgressBus(4)
	ch := b.Subscribe()
	b.Publish(ProgressEvent{Kind: EventTaskDone, TaskID: "t1"})
	b.Close()

	// Buffered event survives the close.
	ev, ok := <-ch
	if !ok || ev.Kind != EventTaskDone {
		t.Fatalf("expected buffered event after close, got ok=%v ev=%+v", ok, ev)
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after draining")
	}

	// Publishing after close is a no-op, not a panic.
	b.Publish(ProgressEvent{Kind: EventIteration})

	// Subscribing after close yields a closed channel.
	if _, ok := <-b.Subscribe(); ok {
		t.Error("subscribe after close should return a closed channel")
	}
}
