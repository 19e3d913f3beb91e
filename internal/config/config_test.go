package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Agent.MaxIterations != 20 {
		t.Errorf("expected default max iterations 20, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.DetectorWindowSize != 20 {
		t.Errorf("expected detector window 20, got %d", cfg.Agent.DetectorWindowSize)
	}
	if cfg.Hooks.RateLimitPerMinute != 60 {
		t.Errorf("expected rate limit 60, got %d", cfg.Hooks.RateLimitPerMinute)
	}
	if cfg.Device.ADBPath != "adb" {
		t.Errorf("expected adb path 'adb', got %q", cfg.Device.ADBPath)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if cfg.Model.Name == "" {
		t.Error("expected defaults when file is missing")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"agent": {"maxIterations": 5}, "model": {"name": "test-model"}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("expected maxIterations 5, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.Model.Name != "test-model" {
		t.Errorf("expected model 'test-model', got %q", cfg.Model.Name)
	}
	// Untouched groups keep defaults.
	if cfg.Hooks.RateLimitPerMinute != 60 {
		t.Errorf("expected default rate limit, got %d", cfg.Hooks.RateLimitPerMinute)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DROIDCLAW_MODEL", "env-model")
	t.Setenv("DROIDCLAW_MAX_ITERATIONS", "7")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if cfg.Model.Name != "env-model" {
		t.Errorf("expected env model override, got %q", cfg.Model.Name)
	}
	if cfg.Agent.MaxIterations != 7 {
		t.Errorf("expected env max iterations 7, got %d", cfg.Agent.MaxIterations)
	}
}

func TestEnvOverrideAllGroups(t *testing.T) {
	t.Setenv("DROIDCLAW_API_KEY", "sk-env")
	t.Setenv("DROIDCLAW_DEVICE_SERIAL", "emulator-5554")
	t.Setenv("DROIDCLAW_TRACE_ENABLED", "true")
	t.Setenv("DROIDCLAW_RATE_LIMIT_PER_MINUTE", "30")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if cfg.Provider.APIKey != "sk-env" {
		t.Errorf("expected env API key, got %q", cfg.Provider.APIKey)
	}
	if cfg.Device.Serial != "emulator-5554" {
		t.Errorf("expected env device serial, got %q", cfg.Device.Serial)
	}
	if !cfg.Trace.Enabled {
		t.Error("expected trace enabled via env")
	}
	if cfg.Hooks.RateLimitPerMinute != 30 {
		t.Errorf("expected env rate limit 30, got %d", cfg.Hooks.RateLimitPerMinute)
	}
}

func TestEnvOverrideBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"model": {"name": "file-model"}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DROIDCLAW_MODEL", "env-model")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if cfg.Model.Name != "env-model" {
		t.Errorf("env override should beat the file value, got %q", cfg.Model.Name)
	}
}

func TestNormalizeClampsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"agent": {"maxIterations": -2, "compactionTokens": 0}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if cfg.Agent.MaxIterations != 20 {
		t.Errorf("expected clamped max iterations 20, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.CompactionTokens != 12000 {
		t.Errorf("expected clamped compaction tokens, got %d", cfg.Agent.CompactionTokens)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := DefaultConfig()
	cfg.Model.Name = "saved-model"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if loaded.Model.Name != "saved-model" {
		t.Errorf("expected round-tripped model name, got %q", loaded.Model.Name)
	}
}
