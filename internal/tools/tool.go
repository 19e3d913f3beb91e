// Package tools provides the tool framework and implementations for the agent.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/DroidClaw/DroidClaw/internal/provider"
)

// ErrorPrefix marks a failed execution inside a Result's content.
const ErrorPrefix = "Error: "

// ResultKind distinguishes text results from image-bearing results.
type ResultKind string

const (
	KindText  ResultKind = "text"
	KindImage ResultKind = "image"
)

// Image holds an inline image payload returned by a tool.
type Image struct {
	Base64   string
	MimeType string
}

// Result is the outcome of a tool execution. Execution failures are
// represented as a Result whose Content begins with ErrorPrefix; they never
// surface as Go errors past the registry boundary.
type Result struct {
	Kind    ResultKind
	Content string
	Image   *Image
}

// IsError reports whether the result represents a failed execution.
func (r *Result) IsError() bool {
	return r != nil && len(r.Content) >= len(ErrorPrefix) && r.Content[:len(ErrorPrefix)] == ErrorPrefix
}

// TextResult builds a plain text result.
func TextResult(content string) *Result {
	return &Result{Kind: KindText, Content: content}
}

// ErrorResult builds an error-marker result from an error.
func ErrorResult(err error) *Result {
	return &Result{Kind: KindText, Content: ErrorPrefix + err.Error()}
}

// Errorf builds an error-marker result from a format string.
func Errorf(format string, args ...any) *Result {
	return &Result{Kind: KindText, Content: ErrorPrefix + fmt.Sprintf(format, args...)}
}

// Tool is the interface that all agent tools must implement.
type Tool interface {
	// Name returns the tool identifier used in function calls.
	Name() string
	// Description returns a human-readable description for the LLM.
	Description() string
	// Parameters returns the JSON Schema for tool parameters.
	Parameters() map[string]any
	// Execute runs the tool with the given parameters.
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Registry manages tool registration and execution. It is safe for
// concurrent use; registration is expected at startup, reads dominate.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry, replacing any prior tool of the
// same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Has reports whether a tool is registered under the given name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// List returns all registered tools.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	return result
}

// Definitions returns tool definitions in OpenAI format.
func (r *Registry) Definitions() []provider.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]provider.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, provider.ToolDefinition{
			Type: "function",
			Function: provider.FunctionDef{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}
	return result
}

// Execute runs a tool by name. It never returns a Go error: unknown tools,
// tool panics, and execution failures all become error-marker Results.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (result *Result) {
	tool, ok := r.Get(name)
	if !ok {
		return Errorf("tool not found: %s", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = Errorf("tool %s panicked: %v", name, rec)
		}
	}()

	res, err := tool.Execute(ctx, params)
	if err != nil {
		return ErrorResult(err)
	}
	if res == nil {
		return TextResult("")
	}
	return res
}

// GetString extracts a string parameter with a default value.
func GetString(params map[string]any, key string, defaultVal string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

// GetInt extracts an int parameter with a default value.
func GetInt(params map[string]any, key string, defaultVal int) int {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return defaultVal
}

// GetBool extracts a bool parameter with a default value.
func GetBool(params map[string]any, key string, defaultVal bool) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}
