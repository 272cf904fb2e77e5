package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ToolGate/ToolGate/internal/provider"
	"github.com/ToolGate/ToolGate/internal/redact"
)

// OutcomeSummary is the compressed result of one execution trace.
type OutcomeSummary struct {
	ShortSummary string   `json:"short_summary"`
	KeyFacts     []string `json:"key_facts"`
	Links        []string `json:"links"`
	Confidence   float64  `json:"confidence"`
}

const summarizerPrompt = `You are a summarization step in a tool-aware
assistant. Compress the execution trace below into a short structured
summary of what was done and what was found.

Execution trace:
%s

Respond with ONLY a JSON object:
{"short_summary": "...", "key_facts": ["..."], "links": ["..."], "confidence": 0.0-1.0}`

// Summarizer compresses an execution trace into an OutcomeSummary, with
// secrets scrubbed before anything reaches the model.
type Summarizer struct {
	llm      *llmClient
	detector *redact.Detector
}

// NewSummarizer creates a summarizer.
func NewSummarizer(llm *llmClient) *Summarizer {
	return &Summarizer{llm: llm, detector: redact.NewDefaultDetector()}
}

// Summarize produces the outcome summary for a trace. A model failure or
// unparseable reply degrades to a deterministic step-count summary instead
// of an error: availability beats polish here.
func (s *Summarizer) Summarize(ctx context.Context, trace *ExecutionTrace, prefs AgentPrefs) *OutcomeSummary {
	model := s.llm.pickModel(s.llm.cfg.Models.Summarizer, prefs)
	prompt := fmt.Sprintf(summarizerPrompt, s.renderTrace(trace))

	var summary OutcomeSummary
	if err := s.llm.completeJSON(ctx, provider.RequestSummarizer, model, prompt, &summary); err != nil {
		slog.Warn("Summarizer fell back to deterministic summary", "error", err)
		return fallbackSummary(trace)
	}
	return &summary
}

// renderTrace serializes each step with its result redacted.
func (s *Summarizer) renderTrace(trace *ExecutionTrace) string {
	type wireStep struct {
		ToolID    string `json:"tool_id"`
		Result    string `json:"result,omitempty"`
		Error     string `json:"error,omitempty"`
		ElapsedMs int64  `json:"elapsed_ms"`
		Success   bool   `json:"success"`
	}
	steps := make([]wireStep, 0, len(trace.Steps))
	for _, step := range trace.Steps {
		var rendered string
		if step.Result != nil {
			raw, err := json.Marshal(step.Result)
			if err != nil {
				raw = []byte(fmt.Sprintf("%v", step.Result))
			}
			rendered = s.detector.Redact(string(raw))
		}
		steps = append(steps, wireStep{
			ToolID:    step.ToolID,
			Result:    rendered,
			Error:     s.detector.Redact(step.Error),
			ElapsedMs: step.ElapsedMs,
			Success:   step.Success,
		})
	}
	out, err := json.MarshalIndent(steps, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(out)
}

// fallbackSummary is the deterministic non-LLM summary.
func fallbackSummary(trace *ExecutionTrace) *OutcomeSummary {
	succeeded, failed := 0, 0
	for _, step := range trace.Steps {
		if step.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return &OutcomeSummary{
		ShortSummary: fmt.Sprintf("%d tool step(s) succeeded, %d failed.", succeeded, failed),
		Confidence:   0.5,
	}
}
