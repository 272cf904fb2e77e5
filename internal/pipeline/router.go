package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ToolGate/ToolGate/internal/provider"
)

// RouterDecision is the routing verdict for one turn.
type RouterDecision struct {
	NeedsTools    bool   `json:"needs_tools"`
	HighLevelGoal string `json:"high_level_goal"`
	Rationale     string `json:"rationale"`
}

// routerWire enforces the strict contract: needs_tools must be present and
// boolean, so a structurally valid but incomplete reply still triggers the
// JSON retry.
type routerWire struct {
	NeedsTools    *bool  `json:"needs_tools"`
	HighLevelGoal string `json:"high_level_goal"`
	Rationale     string `json:"rationale"`
}

func (w *routerWire) UnmarshalJSON(data []byte) error {
	type plain routerWire
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.NeedsTools == nil {
		return errors.New("missing required boolean field needs_tools")
	}
	*w = routerWire(p)
	return nil
}

const routerPrompt = `You are a routing step in a tool-aware assistant.
Decide whether answering the user requires running tools, and extract the
high-level goal if so.

Conversation so far:
%s

User message:
%s

Available tools:
%s

Respond with ONLY a JSON object:
{"needs_tools": true|false, "high_level_goal": "...", "rationale": "..."}`

// Router makes the single per-turn LLM call deciding whether tools are
// needed at all.
type Router struct {
	llm *llmClient
}

// NewRouter creates a router over the shared completion client.
func NewRouter(llm *llmClient) *Router {
	return &Router{llm: llm}
}

// Decide routes one turn.
func (r *Router) Decide(ctx context.Context, bundle *ContextBundle) (*RouterDecision, error) {
	model := r.llm.pickModel(r.llm.cfg.Models.Router, bundle.AgentPrefs)
	prompt := fmt.Sprintf(routerPrompt,
		orNone(bundle.ConversationSummary),
		bundle.UserMessage,
		previewList(bundle.ToolRegistryPreview))

	var wire routerWire
	if err := r.llm.completeJSON(ctx, provider.RequestRouter, model, prompt, &wire); err != nil {
		return nil, fmt.Errorf("route turn: %w", err)
	}
	decision := &RouterDecision{
		NeedsTools:    *wire.NeedsTools,
		HighLevelGoal: wire.HighLevelGoal,
		Rationale:     wire.Rationale,
	}
	slog.Debug("Router decision", "needs_tools", decision.NeedsTools, "goal", decision.HighLevelGoal)
	return decision, nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func previewList(preview []ToolPreview) string {
	if len(preview) == 0 {
		return "(none)"
	}
	out := ""
	for _, p := range preview {
		out += fmt.Sprintf("- %s %v\n", p.Slug, p.Capabilities)
	}
	return out
}
