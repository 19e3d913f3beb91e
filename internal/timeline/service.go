// Package timeline persists an audit trail of tasks and the tool calls
// they made, in a local sqlite database.
package timeline

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

type Service struct {
	db *sql.DB
}

// NewService opens (or creates) the audit database at dbPath.
func NewService(dbPath string) (*Service, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open timeline db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Service{db: db}, nil
}

func (s *Service) Close() error {
	return s.db.Close()
}

// CreateTask records the start of a task.
func (s *Service) CreateTask(taskID, goal, strategy string) error {
	_, err := s.db.Exec(
		`INSERT INTO tasks (task_id, goal, status, strategy) VALUES (?, ?, ?, ?)`,
		taskID, goal, TaskStatusRunning, strategy,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// CompleteTask records the final outcome of a task.
func (s *Service) CompleteTask(taskID, result string, success bool, iterations, toolCalls, promptTokens, outputTokens int) error {
	status := TaskStatusCompleted
	if !success {
		status = TaskStatusFailed
	}
	_, err := s.db.Exec(
		`UPDATE tasks SET status = ?, result = ?, success = ?, iterations = ?,
			tool_calls = ?, prompt_tokens = ?, output_tokens = ?, completed_at = CURRENT_TIMESTAMP
		 WHERE task_id = ?`,
		status, result, success, iterations, toolCalls, promptTokens, outputTokens, taskID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	return nil
}

// SetTaskStrategy updates the execution strategy once it is known.
func (s *Service) SetTaskStrategy(taskID, strategy string) error {
	_, err := s.db.Exec(`UPDATE tasks SET strategy = ? WHERE task_id = ?`, strategy, taskID)
	if err != nil {
		return fmt.Errorf("failed to set task strategy: %w", err)
	}
	return nil
}

// AddStep appends an executed tool call to a task's trail.
func (s *Service) AddStep(step Step) error {
	_, err := s.db.Exec(
		`INSERT INTO steps (task_id, seq, caller, tool, args_json, result, success, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		step.TaskID, step.Seq, step.Caller, step.Tool, step.ArgsJSON, step.Result, step.Success, step.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to add step: %w", err)
	}
	return nil
}

// GetTask returns a task with its steps in execution order.
func (s *Service) GetTask(taskID string) (*Task, []Step, error) {
	var t Task
	var completedAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, task_id, goal, status, strategy, COALESCE(result, ''), success,
			iterations, tool_calls, prompt_tokens, output_tokens, created_at, completed_at
		 FROM tasks WHERE task_id = ?`, taskID,
	).Scan(&t.ID, &t.TaskID, &t.Goal, &t.Status, &t.Strategy, &t.Result, &t.Success,
		&t.Iterations, &t.ToolCalls, &t.PromptTokens, &t.OutputTokens, &t.CreatedAt, &completedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get task: %w", err)
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}

	rows, err := s.db.Query(
		`SELECT id, task_id, seq, caller, tool, args_json, COALESCE(result, ''), success, duration_ms, created_at
		 FROM steps WHERE task_id = ? ORDER BY seq ASC`, taskID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var st Step
		if err := rows.Scan(&st.ID, &st.TaskID, &st.Seq, &st.Caller, &st.Tool,
			&st.ArgsJSON, &st.Result, &st.Success, &st.DurationMs, &st.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, st)
	}
	return &t, steps, rows.Err()
}

// RecentTasks returns the latest tasks, newest first.
func (s *Service) RecentTasks(limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		`SELECT id, task_id, goal, status, strategy, COALESCE(result, ''), success,
			iterations, tool_calls, prompt_tokens, output_tokens, created_at, completed_at
		 FROM tasks ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		var completedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.TaskID, &t.Goal, &t.Status, &t.Strategy, &t.Result, &t.Success,
			&t.Iterations, &t.ToolCalls, &t.PromptTokens, &t.OutputTokens, &t.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if completedAt.Valid {
			t.CompletedAt = &completedAt.Time
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Write satisfies the micro-agent memory contract: subtask results land
// in the task's step trail under the "memory" caller. Best effort, like
// every other memory write.
func (s *Service) Write(taskID, title, content string) {
	_, err := s.db.Exec(
		`INSERT INTO steps (task_id, seq, caller, tool, args_json, result, success)
		 SELECT ?, COALESCE(MAX(seq), 0) + 1, 'memory', 'memory_write', ?, ?, 1
		 FROM steps WHERE task_id = ?`,
		taskID, `{"title":`+strconv.Quote(title)+`}`, content, taskID,
	)
	if err != nil {
		slog.Warn("Failed to persist memory write", "task_id", taskID, "error", err)
	}
}

// SetSetting stores a key/value pair.
func (s *Service) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

// GetSetting returns the stored value, or empty string when unset.
func (s *Service) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}
