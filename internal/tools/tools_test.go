package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubTool struct {
	name    string
	execute func(ctx context.Context, params map[string]any) (*Result, error)
}

func (s *stubTool) Name() string               { return s.name }
func (s *stubTool) Description() string        { return "stub" }
func (s *stubTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (s *stubTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	return s.execute(ctx, params)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "echo", execute: func(_ context.Context, p map[string]any) (*Result, error) {
		return TextResult(GetString(p, "text", "")), nil
	}})

	if !r.Has("echo") {
		t.Error("expected to find echo tool")
	}
	if r.Has("nonexistent") {
		t.Error("expected not to find nonexistent tool")
	}
	if got := len(r.List()); got != 1 {
		t.Errorf("expected 1 tool, got %d", got)
	}
	defs := r.Definitions()
	if len(defs) != 1 || defs[0].Function.Name != "echo" {
		t.Errorf("unexpected definitions: %+v", defs)
	}

	res := r.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	if res.Content != "hi" {
		t.Errorf("expected 'hi', got %q", res.Content)
	}
}

func TestRegistryExecuteNeverThrows(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "fails", execute: func(context.Context, map[string]any) (*Result, error) {
		return nil, errors.New("boom")
	}})
	r.Register(&stubTool{name: "panics", execute: func(context.Context, map[string]any) (*Result, error) {
		panic("kaboom")
	}})

	res := r.Execute(context.Background(), "fails", nil)
	if !res.IsError() || !strings.Contains(res.Content, "boom") {
		t.Errorf("expected error-marker result, got %q", res.Content)
	}

	res = r.Execute(context.Background(), "panics", nil)
	if !res.IsError() || !strings.Contains(res.Content, "kaboom") {
		t.Errorf("expected panic converted to error result, got %q", res.Content)
	}

	res = r.Execute(context.Background(), "missing", nil)
	if !res.IsError() || !strings.Contains(res.Content, "tool not found") {
		t.Errorf("expected not-found error result, got %q", res.Content)
	}
}

func TestIsPhoneClass(t *testing.T) {
	for _, name := range []string{"adb_tap", "adb_swipe", "adb_type", "adb_screenshot"} {
		if !IsPhoneClass(name) {
			t.Errorf("expected %s to be phone-class", name)
		}
	}
	for _, name := range []string{"http_request", "wait", "unknown_tool"} {
		if IsPhoneClass(name) {
			t.Errorf("expected %s not to be phone-class", name)
		}
	}
}

func TestWaitToolValidation(t *testing.T) {
	tool := NewWaitTool()

	res, err := tool.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !res.IsError() {
		t.Error("expected error result for missing ms")
	}

	res, err = tool.Execute(context.Background(), map[string]any{"ms": float64(5)})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if res.IsError() {
		t.Errorf("expected success, got %q", res.Content)
	}
}

func TestHTTPRequestToolRejectsBadURL(t *testing.T) {
	tool := NewHTTPRequestTool(nil)

	res, err := tool.Execute(context.Background(), map[string]any{"url": "file:///etc/passwd"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !res.IsError() {
		t.Error("expected non-http scheme to be rejected")
	}

	res, _ = tool.Execute(context.Background(), map[string]any{})
	if !res.IsError() {
		t.Error("expected missing url to be rejected")
	}
}

func TestResultIsError(t *testing.T) {
	if TextResult("all good").IsError() {
		t.Error("plain result misdetected as error")
	}
	if !Errorf("nope").IsError() {
		t.Error("Errorf result not detected as error")
	}
}
