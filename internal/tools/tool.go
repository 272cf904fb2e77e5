// Package tools provides the tool framework and registry.
package tools

import (
	"context"
	"sort"
	"sync"
)

// Tool sources.
const (
	SourceBuiltin  = "builtin"
	SourceExternal = "external"
)

// CallContext carries turn-scoped identifiers into a tool invocation.
type CallContext struct {
	CorrelationID  string `json:"correlation_id"`
	SessionID      string `json:"session_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
}

// CallResult is the normalized outcome of one tool invocation.
type CallResult struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Tool is the interface every tool must implement.
type Tool interface {
	// Slug returns the tool identifier used in plans.
	Slug() string
	// Description returns a human-readable description for the LLM.
	Description() string
	// IsEnabled reports whether the tool may be selected and executed.
	IsEnabled() bool
	// Capabilities lists what the tool can do (read, write, shell, network...).
	Capabilities() []string
	// ConfigSchema returns the JSON Schema for tool arguments.
	ConfigSchema() map[string]any
	// Source is builtin or external.
	Source() string
	// Call runs the tool with the given arguments.
	Call(ctx context.Context, args map[string]any, cc CallContext) CallResult
}

// Registry manages tool registration and lookup behind a narrow interface
// built at startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Slug()] = tool
}

// Exists reports whether a tool is registered.
func (r *Registry) Exists(slug string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[slug]
	return ok
}

// Get returns a tool by slug.
func (r *Registry) Get(slug string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[slug]
	return tool, ok
}

// All returns every registered tool, sorted by slug for stable iteration.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug() < out[j].Slug() })
	return out
}

// GetString extracts a string argument with a default value.
func GetString(args map[string]any, key string, defaultVal string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

// GetInt extracts an int argument with a default value.
func GetInt(args map[string]any, key string, defaultVal int) int {
	if v, ok := args[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return defaultVal
}

// GetBool extracts a bool argument with a default value.
func GetBool(args map[string]any, key string, defaultVal bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}
