// Package config provides configuration types and loading for droidclaw.
package config

// Config is the root configuration struct.
// Top-level groups: Paths, Model, Provider, Device, Agent, Hooks, Trace.
type Config struct {
	Paths    PathsConfig    `json:"paths"`
	Model    ModelConfig    `json:"model"`
	Provider ProviderConfig `json:"provider"`
	Device   DeviceConfig   `json:"device"`
	Agent    AgentConfig    `json:"agent"`
	Hooks    HooksConfig    `json:"hooks"`
	Trace    TraceConfig    `json:"trace"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	Workspace  string `json:"workspace" envconfig:"WORKSPACE"`
	TimelineDB string `json:"timelineDb" envconfig:"TIMELINE_DB"`
}

// ---------------------------------------------------------------------------
// Model – LLM behaviour
// ---------------------------------------------------------------------------

// ModelConfig groups LLM model and agent-loop settings.
type ModelConfig struct {
	Name        string  `json:"name" envconfig:"MODEL"`
	MaxTokens   int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature float64 `json:"temperature" envconfig:"TEMPERATURE"`
}

// ---------------------------------------------------------------------------
// Provider – LLM API key & endpoint
// ---------------------------------------------------------------------------

// ProviderConfig contains settings for the LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
}

// ---------------------------------------------------------------------------
// Device – controlled phone/emulator
// ---------------------------------------------------------------------------

// DeviceConfig contains settings for the controlled device.
type DeviceConfig struct {
	ADBPath   string `json:"adbPath" envconfig:"ADB_PATH"`
	Serial    string `json:"serial" envconfig:"DEVICE_SERIAL"`
	Endpoint  string `json:"endpoint" envconfig:"DEVICE_ENDPOINT"`
	PairToken string `json:"pairToken" envconfig:"DEVICE_PAIR_TOKEN"`
}

// ---------------------------------------------------------------------------
// Agent – execution-core behaviour
// ---------------------------------------------------------------------------

// AgentConfig contains settings for the agent execution core.
type AgentConfig struct {
	MaxIterations      int `json:"maxIterations" envconfig:"MAX_ITERATIONS"`
	CompactionTokens   int `json:"compactionTokens" envconfig:"COMPACTION_TOKENS"`
	CompactionTail     int `json:"compactionTail" envconfig:"COMPACTION_TAIL"`
	MicroAgentBudget   int `json:"microAgentBudget" envconfig:"MICRO_AGENT_BUDGET"`
	DetectorWindowSize int `json:"detectorWindowSize" envconfig:"DETECTOR_WINDOW_SIZE"`
}

// ---------------------------------------------------------------------------
// Hooks – tool hook pipeline
// ---------------------------------------------------------------------------

// HooksConfig configures the builtin tool hooks.
type HooksConfig struct {
	DenyTools          []string `json:"denyTools" envconfig:"DENY_TOOLS"`
	RateLimitPerMinute int      `json:"rateLimitPerMinute" envconfig:"RATE_LIMIT_PER_MINUTE"`
	LogCapacity        int      `json:"logCapacity" envconfig:"HOOK_LOG_CAPACITY"`
}

// ---------------------------------------------------------------------------
// Trace – Kafka span publishing
// ---------------------------------------------------------------------------

// TraceConfig configures the optional Kafka trace publisher.
type TraceConfig struct {
	Enabled   bool     `json:"enabled" envconfig:"TRACE_ENABLED"`
	Brokers   []string `json:"brokers" envconfig:"TRACE_BROKERS"`
	Topic     string   `json:"topic" envconfig:"TRACE_TOPIC"`
	QueueSize int      `json:"queueSize" envconfig:"TRACE_QUEUE_SIZE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Workspace:  "~/.droidclaw/workspace",
			TimelineDB: "~/.droidclaw/timeline.db",
		},
		Model: ModelConfig{
			Name:        "anthropic/claude-sonnet-4-5",
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		Provider: ProviderConfig{
			APIBase: "https://api.openai.com/v1",
		},
		Device: DeviceConfig{
			ADBPath: "adb",
		},
		Agent: AgentConfig{
			MaxIterations:      20,
			CompactionTokens:   12000,
			CompactionTail:     6,
			MicroAgentBudget:   10,
			DetectorWindowSize: 20,
		},
		Hooks: HooksConfig{
			RateLimitPerMinute: 60,
			LogCapacity:        200,
		},
		Trace: TraceConfig{
			Topic:     "droidclaw.traces",
			QueueSize: 256,
		},
	}
}
