package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DeviceController abstracts the controlled phone/emulator. The self-healing
// reconnection layer lives behind this interface, outside the core.
type DeviceController interface {
	Tap(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, x1, y1, x2, y2, durationMs int) error
	Type(ctx context.Context, text string) error
	KeyEvent(ctx context.Context, key string) error
	OpenApp(ctx context.Context, pkg string) error
	Screenshot(ctx context.Context) (*Image, error)
}

// ADBController drives a device through the adb binary.
type ADBController struct {
	adbPath string
	serial  string
}

// NewADBController creates a controller for the given adb binary and
// optional device serial.
func NewADBController(adbPath, serial string) *ADBController {
	if adbPath == "" {
		adbPath = "adb"
	}
	return &ADBController{adbPath: adbPath, serial: serial}
}

func (c *ADBController) run(ctx context.Context, args ...string) ([]byte, error) {
	full := args
	if c.serial != "" {
		full = append([]string{"-s", c.serial}, args...)
	}
	cmd := exec.CommandContext(ctx, c.adbPath, full...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("adb %s: %v: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

func (c *ADBController) Tap(ctx context.Context, x, y int) error {
	_, err := c.run(ctx, "shell", "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	return err
}

func (c *ADBController) Swipe(ctx context.Context, x1, y1, x2, y2, durationMs int) error {
	if durationMs <= 0 {
		durationMs = 300
	}
	_, err := c.run(ctx, "shell", "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2), strconv.Itoa(durationMs))
	return err
}

func (c *ADBController) Type(ctx context.Context, text string) error {
	// adb input text treats spaces as separators.
	escaped := strings.ReplaceAll(text, " ", "%s")
	_, err := c.run(ctx, "shell", "input", "text", escaped)
	return err
}

func (c *ADBController) KeyEvent(ctx context.Context, key string) error {
	_, err := c.run(ctx, "shell", "input", "keyevent", key)
	return err
}

func (c *ADBController) OpenApp(ctx context.Context, pkg string) error {
	_, err := c.run(ctx, "shell", "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	return err
}

func (c *ADBController) Screenshot(ctx context.Context) (*Image, error) {
	out, err := c.run(ctx, "exec-out", "screencap", "-p")
	if err != nil {
		return nil, err
	}
	return &Image{
		Base64:   base64.StdEncoding.EncodeToString(out),
		MimeType: "image/png",
	}, nil
}

// ---------------------------------------------------------------------------
// Device tool wrappers
// ---------------------------------------------------------------------------

// RegisterDeviceTools registers all phone-class tools against the controller.
func RegisterDeviceTools(r *Registry, dc DeviceController) {
	r.Register(NewTapTool(dc))
	r.Register(NewSwipeTool(dc))
	r.Register(NewTypeTool(dc))
	r.Register(NewKeyEventTool(dc))
	r.Register(NewOpenAppTool(dc))
	r.Register(NewScreenshotTool(dc))
	r.Register(NewBackTool(dc))
	r.Register(NewHomeTool(dc))
}

// TapTool taps at screen coordinates.
type TapTool struct{ dc DeviceController }

func NewTapTool(dc DeviceController) *TapTool { return &TapTool{dc: dc} }

func (t *TapTool) Name() string { return "adb_tap" }

func (t *TapTool) Description() string {
	return "Tap the device screen at pixel coordinates (x, y)."
}

func (t *TapTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer", "description": "X coordinate in pixels"},
			"y": map[string]any{"type": "integer", "description": "Y coordinate in pixels"},
		},
		"required": []string{"x", "y"},
	}
}

func (t *TapTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	x := GetInt(params, "x", -1)
	y := GetInt(params, "y", -1)
	if x < 0 || y < 0 {
		return Errorf("adb_tap requires non-negative x and y"), nil
	}
	if err := t.dc.Tap(ctx, x, y); err != nil {
		return ErrorResult(err), nil
	}
	return TextResult(fmt.Sprintf("Tapped (%d, %d)", x, y)), nil
}

// SwipeTool swipes between two points.
type SwipeTool struct{ dc DeviceController }

func NewSwipeTool(dc DeviceController) *SwipeTool { return &SwipeTool{dc: dc} }

func (t *SwipeTool) Name() string { return "adb_swipe" }

func (t *SwipeTool) Description() string {
	return "Swipe from (x1, y1) to (x2, y2) over duration_ms milliseconds."
}

func (t *SwipeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x1":          map[string]any{"type": "integer"},
			"y1":          map[string]any{"type": "integer"},
			"x2":          map[string]any{"type": "integer"},
			"y2":          map[string]any{"type": "integer"},
			"duration_ms": map[string]any{"type": "integer", "description": "Swipe duration, default 300"},
		},
		"required": []string{"x1", "y1", "x2", "y2"},
	}
}

func (t *SwipeTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	err := t.dc.Swipe(ctx,
		GetInt(params, "x1", 0), GetInt(params, "y1", 0),
		GetInt(params, "x2", 0), GetInt(params, "y2", 0),
		GetInt(params, "duration_ms", 300))
	if err != nil {
		return ErrorResult(err), nil
	}
	return TextResult("Swipe completed"), nil
}

// TypeTool types text into the focused input.
type TypeTool struct{ dc DeviceController }

func NewTypeTool(dc DeviceController) *TypeTool { return &TypeTool{dc: dc} }

func (t *TypeTool) Name() string { return "adb_type" }

func (t *TypeTool) Description() string {
	return "Type text into the currently focused input field."
}

func (t *TypeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required": []string{"text"},
	}
}

func (t *TypeTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	text := GetString(params, "text", "")
	if text == "" {
		return Errorf("adb_type requires non-empty text"), nil
	}
	if err := t.dc.Type(ctx, text); err != nil {
		return ErrorResult(err), nil
	}
	return TextResult(fmt.Sprintf("Typed %d characters", len(text))), nil
}

// KeyEventTool sends a raw Android key event.
type KeyEventTool struct{ dc DeviceController }

func NewKeyEventTool(dc DeviceController) *KeyEventTool { return &KeyEventTool{dc: dc} }

func (t *KeyEventTool) Name() string { return "adb_keyevent" }

func (t *KeyEventTool) Description() string {
	return "Send an Android key event (e.g. KEYCODE_ENTER, KEYCODE_BACK)."
}

func (t *KeyEventTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"key": map[string]any{"type": "string", "description": "Android keycode name"},
		},
		"required": []string{"key"},
	}
}

func (t *KeyEventTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	key := GetString(params, "key", "")
	if key == "" {
		return Errorf("adb_keyevent requires a key"), nil
	}
	if err := t.dc.KeyEvent(ctx, key); err != nil {
		return ErrorResult(err), nil
	}
	return TextResult("Sent key event " + key), nil
}

// OpenAppTool launches an app by package name.
type OpenAppTool struct{ dc DeviceController }

func NewOpenAppTool(dc DeviceController) *OpenAppTool { return &OpenAppTool{dc: dc} }

func (t *OpenAppTool) Name() string { return "adb_open_app" }

func (t *OpenAppTool) Description() string {
	return "Launch an app on the device by its package name."
}

func (t *OpenAppTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"package": map[string]any{"type": "string", "description": "Android package name"},
		},
		"required": []string{"package"},
	}
}

func (t *OpenAppTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	pkg := GetString(params, "package", "")
	if pkg == "" {
		return Errorf("adb_open_app requires a package name"), nil
	}
	if err := t.dc.OpenApp(ctx, pkg); err != nil {
		return ErrorResult(err), nil
	}
	return TextResult("Launched " + pkg), nil
}

// ScreenshotTool captures the device screen.
type ScreenshotTool struct{ dc DeviceController }

func NewScreenshotTool(dc DeviceController) *ScreenshotTool { return &ScreenshotTool{dc: dc} }

func (t *ScreenshotTool) Name() string { return "adb_screenshot" }

func (t *ScreenshotTool) Description() string {
	return "Capture a screenshot of the device screen."
}

func (t *ScreenshotTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *ScreenshotTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	img, err := t.dc.Screenshot(ctx)
	if err != nil {
		return ErrorResult(err), nil
	}
	return &Result{
		Kind:    KindImage,
		Content: "Screenshot captured",
		Image:   img,
	}, nil
}

// BackTool presses the back button.
type BackTool struct{ dc DeviceController }

func NewBackTool(dc DeviceController) *BackTool { return &BackTool{dc: dc} }

func (t *BackTool) Name() string { return "adb_back" }

func (t *BackTool) Description() string { return "Press the device back button." }

func (t *BackTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *BackTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	if err := t.dc.KeyEvent(ctx, "KEYCODE_BACK"); err != nil {
		return ErrorResult(err), nil
	}
	return TextResult("Pressed back"), nil
}

// HomeTool presses the home button.
type HomeTool struct{ dc DeviceController }

func NewHomeTool(dc DeviceController) *HomeTool { return &HomeTool{dc: dc} }

func (t *HomeTool) Name() string { return "adb_home" }

func (t *HomeTool) Description() string { return "Press the device home button." }

func (t *HomeTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *HomeTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	if err := t.dc.KeyEvent(ctx, "KEYCODE_HOME"); err != nil {
		return ErrorResult(err), nil
	}
	return TextResult("Pressed home"), nil
}
