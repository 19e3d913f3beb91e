package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".droidclaw"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("DROIDCLAW_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := resolveHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("DROIDCLAW_HOME")); h != "" {
		if strings.HasPrefix(h, "~") {
			base, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(base, h[1:]), nil
		}
		return h, nil
	}
	return os.UserHomeDir()
}

// Load reads the config file (if present), applies environment variable
// overrides, and returns the merged configuration. A missing file is not an
// error: defaults plus environment are returned.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom loads configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to env overlay
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Each group is processed separately so the field tags resolve as
	// top-level names (DROIDCLAW_MODEL, DROIDCLAW_API_KEY, ...) instead
	// of being nested under the group's field name.
	groups := []any{
		&cfg.Paths,
		&cfg.Model,
		&cfg.Provider,
		&cfg.Device,
		&cfg.Agent,
		&cfg.Hooks,
		&cfg.Trace,
	}
	for _, group := range groups {
		if err := envconfig.Process("droidclaw", group); err != nil {
			return nil, fmt.Errorf("apply env overrides: %w", err)
		}
	}

	normalize(cfg)
	return cfg, nil
}

// Save writes the config as indented JSON, creating the directory if needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// ExpandPath resolves a leading ~ against the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := resolveHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// normalize clamps out-of-range values back to defaults.
func normalize(cfg *Config) {
	def := DefaultConfig()
	if cfg.Agent.MaxIterations <= 0 {
		cfg.Agent.MaxIterations = def.Agent.MaxIterations
	}
	if cfg.Agent.CompactionTokens <= 0 {
		cfg.Agent.CompactionTokens = def.Agent.CompactionTokens
	}
	if cfg.Agent.CompactionTail <= 0 {
		cfg.Agent.CompactionTail = def.Agent.CompactionTail
	}
	if cfg.Agent.MicroAgentBudget <= 0 {
		cfg.Agent.MicroAgentBudget = def.Agent.MicroAgentBudget
	}
	if cfg.Agent.DetectorWindowSize <= 0 {
		cfg.Agent.DetectorWindowSize = def.Agent.DetectorWindowSize
	}
	if cfg.Hooks.RateLimitPerMinute <= 0 {
		cfg.Hooks.RateLimitPerMinute = def.Hooks.RateLimitPerMinute
	}
	if cfg.Hooks.LogCapacity <= 0 {
		cfg.Hooks.LogCapacity = def.Hooks.LogCapacity
	}
	if cfg.Trace.QueueSize <= 0 {
		cfg.Trace.QueueSize = def.Trace.QueueSize
	}
	if cfg.Model.MaxTokens <= 0 {
		cfg.Model.MaxTokens = def.Model.MaxTokens
	}
}
