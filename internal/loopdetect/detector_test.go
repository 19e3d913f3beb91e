package loopdetect

import (
	"fmt"
	"testing"
)

func TestHashArgsKeyOrderIndependent(t *testing.T) {
	a := map[string]any{"x": 1, "y": "two", "z": []any{1, 2}}
	b := map[string]any{"z": []any{1, 2}, "y": "two", "x": 1}
	if HashArgs(a) != HashArgs(b) {
		t.Error("logically equal args hashed differently")
	}
	c := map[string]any{"x": 2, "y": "two", "z": []any{1, 2}}
	if HashArgs(a) == HashArgs(c) {
		t.Error("different args hashed the same")
	}
}

func TestNoProgressEscalation(t *testing.T) {
	d := New()
	args := map[string]any{"x": 100, "y": 200}

	for i := 0; i < 7; i++ {
		d.Record("adb_tap", args, "nothing happened")
	}
	if res := d.Check("adb_tap", args); res.Level != LevelOK {
		t.Fatalf("expected ok at streak 7, got %s: %s", res.Level, res.Message)
	}

	d.Record("adb_tap", args, "nothing happened")
	res := d.Check("adb_tap", args)
	if res.Level != LevelWarning {
		t.Fatalf("expected warning at streak 8, got %s", res.Level)
	}

	// The same signature must not warn again.
	if res := d.Check("adb_tap", args); res.Level != LevelOK {
		t.Errorf("expected warning to be deduplicated, got %s", res.Level)
	}

	for i := 0; i < 4; i++ {
		d.Record("adb_tap", args, "nothing happened")
	}
	res = d.Check("adb_tap", args)
	if res.Level != LevelCritical {
		t.Fatalf("expected critical at streak 12, got %s: %s", res.Level, res.Message)
	}
}

func TestNoProgressResetByDifferentResult(t *testing.T) {
	d := New()
	args := map[string]any{"key": "KEYCODE_ENTER"}

	for i := 0; i < 7; i++ {
		d.Record("adb_keyevent", args, "screen A")
	}
	d.Record("adb_keyevent", args, "screen B")
	d.Record("adb_keyevent", args, "screen B")

	// Streak broken by the changed result: no critical verdict.
	if res := d.Check("adb_keyevent", args); res.Level == LevelCritical {
		t.Errorf("changed result should break the no-progress streak: %s", res.Message)
	}
}

func TestPingPongDetection(t *testing.T) {
	d := New()
	back := map[string]any{}
	tap := map[string]any{"x": 1, "y": 2}

	// Alternate 9 calls ending on adb_back; the prospective adb_tap
	// makes 10 alternating signatures.
	for i := 0; i < 9; i++ {
		if i%2 == 0 {
			d.Record("adb_back", back, fmt.Sprintf("r%d", i))
		} else {
			d.Record("adb_tap", tap, fmt.Sprintf("r%d", i))
		}
	}
	res := d.Check("adb_tap", tap)
	if res.Level != LevelCritical {
		t.Fatalf("expected ping-pong critical, got %s: %s", res.Level, res.Message)
	}
}

func TestPingPongNotTriggeredByShortAlternation(t *testing.T) {
	d := New()
	a := map[string]any{"n": 1}
	b := map[string]any{"n": 2}
	for i := 0; i < 5; i++ {
		if i%2 == 0 {
			d.Record("wait", a, "ok")
		} else {
			d.Record("wait", b, "ok")
		}
	}
	if res := d.Check("wait", b); res.Level == LevelCritical {
		t.Errorf("short alternation should not be critical: %s", res.Message)
	}
}

func TestWindowEviction(t *testing.T) {
	d := NewWithSize(5)
	for i := 0; i < 20; i++ {
		d.Record("wait", map[string]any{"ms": i}, "ok")
	}
	if got := d.Len(); got != 5 {
		t.Fatalf("expected window capped at 5, got %d", got)
	}

	// Calls that slid out of the window no longer count.
	if res := d.Check("wait", map[string]any{"ms": 0}); res.Level != LevelOK {
		t.Errorf("evicted calls should not trigger detection, got %s", res.Level)
	}
}

func TestReset(t *testing.T) {
	d := New()
	args := map[string]any{"x": 1, "y": 1}
	for i := 0; i < 15; i++ {
		d.Record("adb_tap", args, "same")
	}
	if res := d.Check("adb_tap", args); res.Level != LevelCritical {
		t.Fatal("precondition: detector should be critical before reset")
	}
	d.Reset()
	if d.Len() != 0 {
		t.Error("reset should empty the window")
	}
	if res := d.Check("adb_tap", args); res.Level != LevelOK {
		t.Errorf("reset detector should report ok, got %s", res.Level)
	}
}
