package pipeline

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ToolGate/ToolGate/internal/config"
	"github.com/ToolGate/ToolGate/internal/store"
	"github.com/ToolGate/ToolGate/internal/tools"
)

const (
	contextTurns      = 5
	contextMessageCap = 200
)

// AgentPrefs carries session-scoped model overrides.
type AgentPrefs struct {
	ModelProvider string `json:"model_provider,omitempty"`
	ModelName     string `json:"model_name,omitempty"`
}

// ToolPreview is the slice of a tool definition shown to the router and
// selector prompts.
type ToolPreview struct {
	Slug         string         `json:"slug"`
	Capabilities []string       `json:"capabilities"`
	Schema       map[string]any `json:"schema,omitempty"`
}

// ContextBundle is the immutable per-turn input to the LLM stages.
type ContextBundle struct {
	UserMessage         string        `json:"user_message"`
	ConversationSummary string        `json:"conversation_summary"`
	AgentPrefs          AgentPrefs    `json:"agent_prefs"`
	ToolRegistryPreview []ToolPreview `json:"tool_registry_preview"`
}

// ContextBroker assembles a bounded context bundle for one user turn.
type ContextBroker struct {
	store    *store.Store
	registry *tools.Registry
	cfg      config.PipelineConfig
}

// NewContextBroker creates a broker over the given conversation store and
// tool registry. The store may be nil for sessionless turns.
func NewContextBroker(st *store.Store, registry *tools.Registry, cfg config.PipelineConfig) *ContextBroker {
	return &ContextBroker{store: st, registry: registry, cfg: cfg}
}

// Assemble builds the bundle: a summary of the session's recent messages,
// the session's model preferences, and a preview of the first N enabled
// tools. Tools are previewed in registry order with no relevance ranking.
func (b *ContextBroker) Assemble(sessionID, userMessage string) (*ContextBundle, error) {
	bundle := &ContextBundle{
		UserMessage:         userMessage,
		ToolRegistryPreview: b.toolPreview(),
	}
	if sessionID == "" || b.store == nil {
		return bundle, nil
	}

	msgs, err := b.store.RecentMessages(sessionID, contextTurns*2)
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}
	bundle.ConversationSummary = b.summarize(msgs)

	provider, model, err := b.store.SessionPrefs(sessionID)
	if err != nil {
		slog.Warn("Session prefs unavailable", "session", sessionID, "error", err)
	} else {
		bundle.AgentPrefs = AgentPrefs{ModelProvider: provider, ModelName: model}
	}
	return bundle, nil
}

// summarize renders recent messages one per line, capping each message and
// then trimming the whole summary from the front at a line boundary so the
// newest turns always survive.
func (b *ContextBroker) summarize(msgs []store.MessageRow) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		content := strings.ReplaceAll(m.Content, "\n", " ")
		if r := []rune(content); len(r) > contextMessageCap {
			content = string(r[:contextMessageCap]) + "..."
		}
		lines = append(lines, m.Role+": "+content)
	}
	summary := strings.Join(lines, "\n")

	max := b.cfg.MaxSummaryLength
	for max > 0 && len(summary) > max {
		i := strings.IndexByte(summary, '\n')
		if i < 0 {
			// A single line over budget is dropped whole rather than cut
			// mid-message.
			return ""
		}
		summary = summary[i+1:]
	}
	return summary
}

func (b *ContextBroker) toolPreview() []ToolPreview {
	n := b.cfg.ToolPreviewCount
	var out []ToolPreview
	for _, t := range b.registry.All() {
		if !t.IsEnabled() {
			continue
		}
		out = append(out, ToolPreview{
			Slug:         t.Slug(),
			Capabilities: t.Capabilities(),
			Schema:       t.ConfigSchema(),
		})
		if n > 0 && len(out) >= n {
			break
		}
	}
	return out
}
