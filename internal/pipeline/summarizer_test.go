package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/ToolGate/ToolGate/internal/config"
	"github.com/ToolGate/ToolGate/internal/provider"
)

func TestSummarizeParsesModelReply(t *testing.T) {
	fake := &fakeCompleter{responses: map[string][]string{
		provider.RequestSummarizer: {"```json\n{\"short_summary\": \"done\", \"key_facts\": [\"a\"], \"links\": [], \"confidence\": 0.9}\n```"},
	}}
	s := NewSummarizer(newLLMClient(config.DefaultConfig(), resolveFake(fake)))

	trace := &ExecutionTrace{Steps: []ToolResult{{ToolID: "fs.read", Success: true}}}
	summary := s.Summarize(context.Background(), trace, AgentPrefs{})
	if summary.ShortSummary != "done" || summary.Confidence != 0.9 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestSummarizeFallsBackToDeterministicSummary(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Pipeline.RetryOnParseFailure = false
	fake := &fakeCompleter{responses: map[string][]string{
		provider.RequestSummarizer: {"I could not produce JSON, sorry."},
	}}
	s := NewSummarizer(newLLMClient(cfg, resolveFake(fake)))

	trace := &ExecutionTrace{Steps: []ToolResult{
		{ToolID: "fs.read", Success: true},
		{ToolID: "fs.read", Success: true},
		{ToolID: "shell.exec", Success: false, Error: "exit 1"},
	}}
	summary := s.Summarize(context.Background(), trace, AgentPrefs{})
	if summary.ShortSummary != "2 tool step(s) succeeded, 1 failed." {
		t.Fatalf("unexpected fallback: %q", summary.ShortSummary)
	}
	if summary.Confidence != 0.5 {
		t.Fatalf("fallback confidence = %v, want 0.5", summary.Confidence)
	}
}

func TestSummarizeRedactsTraceBeforeModel(t *testing.T) {
	fake := &fakeCompleter{responses: map[string][]string{
		provider.RequestSummarizer: {`{"short_summary": "ok", "key_facts": [], "links": [], "confidence": 1}`},
	}}
	s := NewSummarizer(newLLMClient(config.DefaultConfig(), resolveFake(fake)))

	trace := &ExecutionTrace{Steps: []ToolResult{{
		ToolID:  "http.fetch",
		Success: true,
		Result:  "token sk-abcdefghijklmnopqrstuvwx found for bob@example.com",
	}}}
	s.Summarize(context.Background(), trace, AgentPrefs{})

	prompt := fake.calls[0].Prompt
	if strings.Contains(prompt, "sk-abcdefghijklmnopqrstuvwx") {
		t.Fatal("api key leaked into the summarizer prompt")
	}
	if strings.Contains(prompt, "bob@example.com") {
		t.Fatal("email leaked into the summarizer prompt")
	}
	if !strings.Contains(prompt, "[REDACTED:") {
		t.Fatal("expected redaction markers in the prompt")
	}
}
