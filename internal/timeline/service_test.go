package timeline

import (
	"path/filepath"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(filepath.Join(t.TempDir(), "timeline.db"))
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestTaskLifecycle(t *testing.T) {
	svc := newTestService(t)

	if err := svc.CreateTask("t1", "open the calculator", "runner"); err != nil {
		t.Fatalf("CreateTask() error: %v", err)
	}
	if err := svc.AddStep(Step{TaskID: "t1", Seq: 1, Caller: "runner", Tool: "adb_open_app", ArgsJSON: `{"package":"com.android.calculator2"}`, Result: "Launched", Success: true, DurationMs: 120}); err != nil {
		t.Fatalf("AddStep() error: %v", err)
	}
	if err := svc.AddStep(Step{TaskID: "t1", Seq: 2, Caller: "runner", Tool: "adb_screenshot", Result: "Screenshot captured", Success: true, DurationMs: 450}); err != nil {
		t.Fatalf("AddStep() error: %v", err)
	}
	if err := svc.CompleteTask("t1", "Calculator opened", true, 2, 2, 500, 80); err != nil {
		t.Fatalf("CompleteTask() error: %v", err)
	}

	task, steps, err := svc.GetTask("t1")
	if err != nil {
		t.Fatalf("GetTask() error: %v", err)
	}
	if task.Status != TaskStatusCompleted || !task.Success {
		t.Errorf("unexpected task state: %+v", task)
	}
	if task.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
	if task.Iterations != 2 || task.ToolCalls != 2 {
		t.Errorf("unexpected counters: %+v", task)
	}
	if len(steps) != 2 || steps[0].Tool != "adb_open_app" || steps[1].Seq != 2 {
		t.Errorf("unexpected steps: %+v", steps)
	}
}

func TestFailedTaskStatus(t *testing.T) {
	svc := newTestService(t)
	if err := svc.CreateTask("t2", "impossible goal", "runner"); err != nil {
		t.Fatalf("CreateTask() error: %v", err)
	}
	if err := svc.CompleteTask("t2", "gave up after budget", false, 20, 31, 0, 0); err != nil {
		t.Fatalf("CompleteTask() error: %v", err)
	}
	task, _, err := svc.GetTask("t2")
	if err != nil {
		t.Fatalf("GetTask() error: %v", err)
	}
	if task.Status != TaskStatusFailed || task.Success {
		t.Errorf("expected failed status, got %+v", task)
	}
}

func TestRecentTasks(t *testing.T) {
	svc := newTestService(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := svc.CreateTask(id, "goal "+id, "plan"); err != nil {
			t.Fatalf("CreateTask(%s) error: %v", id, err)
		}
	}
	tasks, err := svc.RecentTasks(2)
	if err != nil {
		t.Fatalf("RecentTasks() error: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].TaskID != "c" || tasks[1].TaskID != "b" {
		t.Errorf("expected newest first, got %s, %s", tasks[0].TaskID, tasks[1].TaskID)
	}
}

func TestSettings(t *testing.T) {
	svc := newTestService(t)
	if v, err := svc.GetSetting("device.serial"); err != nil || v != "" {
		t.Fatalf("expected empty unset value, got %q, %v", v, err)
	}
	if err := svc.SetSetting("device.serial", "emulator-5554"); err != nil {
		t.Fatalf("SetSetting() error: %v", err)
	}
	if err := svc.SetSetting("device.serial", "emulator-5556"); err != nil {
		t.Fatalf("SetSetting() overwrite error: %v", err)
	}
	v, err := svc.GetSetting("device.serial")
	if err != nil || v != "emulator-5556" {
		t.Errorf("expected overwritten value, got %q, %v", v, err)
	}
}
