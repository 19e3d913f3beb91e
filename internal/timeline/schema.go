package timeline

import "time"

// Task is a tracked top-level agent task.
type Task struct {
	ID           int64      `json:"id"`
	TaskID       string     `json:"task_id"`
	Goal         string     `json:"goal"`
	Status       string     `json:"status"`
	Strategy     string     `json:"strategy"` // plan, microagent, runner
	Result       string     `json:"result,omitempty"`
	Success      bool       `json:"success"`
	Iterations   int        `json:"iterations"`
	ToolCalls    int        `json:"tool_calls"`
	PromptTokens int        `json:"prompt_tokens"`
	OutputTokens int        `json:"output_tokens"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Step is one executed tool call within a task.
type Step struct {
	ID         int64     `json:"id"`
	TaskID     string    `json:"task_id"`
	Seq        int       `json:"seq"`
	Caller     string    `json:"caller"`
	Tool       string    `json:"tool"`
	ArgsJSON   string    `json:"args_json"`
	Result     string    `json:"result"`
	Success    bool      `json:"success"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// Schema creates the audit tables.
const Schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT UNIQUE NOT NULL,
	goal TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'running',
	strategy TEXT NOT NULL DEFAULT 'runner',
	result TEXT,
	success BOOLEAN NOT NULL DEFAULT 0,
	iterations INTEGER NOT NULL DEFAULT 0,
	tool_calls INTEGER NOT NULL DEFAULT 0,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at);

CREATE TABLE IF NOT EXISTS steps (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	caller TEXT NOT NULL DEFAULT 'runner',
	tool TEXT NOT NULL,
	args_json TEXT NOT NULL DEFAULT '{}',
	result TEXT,
	success BOOLEAN NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (task_id) REFERENCES tasks(task_id)
);

CREATE INDEX IF NOT EXISTS idx_steps_task ON steps(task_id, seq);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
