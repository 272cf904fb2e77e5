package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ToolGate/ToolGate/internal/config"
	"github.com/ToolGate/ToolGate/internal/provider"
	"github.com/ToolGate/ToolGate/internal/tools"
)

// PlanStep is one tool invocation in a plan.
type PlanStep struct {
	ToolID string         `json:"tool_id"`
	Args   map[string]any `json:"args"`
}

// ToolPlan is the ordered set of tool invocations for one goal. Mutable
// during post-processing: permission filtering removes disallowed steps.
type ToolPlan struct {
	SelectedToolIDs []string   `json:"selected_tool_ids"`
	PlanSteps       []PlanStep `json:"plan_steps"`
	InputsNeeded    []string   `json:"inputs_needed"`
}

const selectorPrompt = `You are a planning step in a tool-aware assistant.
Turn the goal into an ordered plan of tool invocations using ONLY the tools
listed below.

Goal:
%s

User message:
%s

Available tools:
%s

Respond with ONLY a JSON object:
{"selected_tool_ids": ["..."], "plan_steps": [{"tool_id": "...", "args": {}}], "inputs_needed": []}`

// Selector makes the single per-turn LLM call turning a goal into a tool
// plan.
type Selector struct {
	llm      *llmClient
	registry *tools.Registry
	external *tools.ExternalCache
	cfg      config.ToolsConfig
}

// NewSelector creates a selector. The external cache may be nil when no
// external tool source is configured.
func NewSelector(llm *llmClient, registry *tools.Registry, external *tools.ExternalCache, cfg config.ToolsConfig) *Selector {
	return &Selector{llm: llm, registry: registry, external: external, cfg: cfg}
}

// SelectTools plans tool usage for a goal. Candidates are enabled builtin
// tools only; external definitions are refreshed first when the cache is
// stale and auto-refresh is on, so their descriptions are current even
// though they are not offered to the planner directly.
func (s *Selector) SelectTools(ctx context.Context, goal string, bundle *ContextBundle) (*ToolPlan, error) {
	if s.external != nil && s.cfg.AutoRefresh {
		s.external.Definitions(ctx, true)
	}

	candidates := s.candidateList()
	model := s.llm.pickModel(s.llm.cfg.Models.Selector, bundle.AgentPrefs)
	prompt := fmt.Sprintf(selectorPrompt, goal, bundle.UserMessage, candidates)

	var plan ToolPlan
	if err := s.llm.completeJSON(ctx, provider.RequestSelector, model, prompt, &plan); err != nil {
		return nil, fmt.Errorf("select tools: %w", err)
	}

	s.filterByAllowList(&plan)
	s.backfillArgs(&plan, bundle)
	return &plan, nil
}

// candidateList renders enabled builtin tools for the prompt. External
// tools are excluded to keep prompt size bounded.
func (s *Selector) candidateList() string {
	out := ""
	for _, t := range s.registry.All() {
		if !t.IsEnabled() || t.Source() != tools.SourceBuiltin {
			continue
		}
		schema, _ := json.Marshal(t.ConfigSchema())
		out += fmt.Sprintf("- %s: %s args=%s\n", t.Slug(), t.Description(), schema)
	}
	if out == "" {
		return "(none)"
	}
	return out
}

// filterByAllowList drops plan steps whose tool is not allow-listed. An
// empty allow-list permits everything.
func (s *Selector) filterByAllowList(plan *ToolPlan) {
	if len(s.cfg.AllowList) == 0 {
		return
	}
	allowed := make(map[string]bool, len(s.cfg.AllowList))
	for _, id := range s.cfg.AllowList {
		allowed[id] = true
	}

	kept := plan.PlanSteps[:0]
	for _, step := range plan.PlanSteps {
		if !allowed[step.ToolID] {
			slog.Warn("Dropping plan step, tool not in allow list", "tool", step.ToolID)
			continue
		}
		kept = append(kept, step)
	}
	plan.PlanSteps = kept

	keptIDs := plan.SelectedToolIDs[:0]
	for _, id := range plan.SelectedToolIDs {
		if allowed[id] {
			keptIDs = append(keptIDs, id)
		}
	}
	plan.SelectedToolIDs = keptIDs
}

// backfillArgs is an extension point for filling missing step arguments
// from context. Intentionally a no-op.
func (s *Selector) backfillArgs(plan *ToolPlan, bundle *ContextBundle) {
	_ = plan
	_ = bundle
}
