package pipeline

import (
	"context"
	"testing"

	"github.com/ToolGate/ToolGate/internal/config"
	"github.com/ToolGate/ToolGate/internal/provider"
)

func TestStripCodeFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
		{"plain text", "plain text"},
	}
	for _, c := range cases {
		if got := stripCodeFences(c.in); got != c.want {
			t.Fatalf("stripCodeFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPickModel(t *testing.T) {
	llm := newLLMClient(config.DefaultConfig(), nil)
	cases := []struct {
		prefs AgentPrefs
		want  string
	}{
		{AgentPrefs{}, "gpt-4o-mini"},
		{AgentPrefs{ModelName: "claude-haiku-4"}, "claude-haiku-4"},
		{AgentPrefs{ModelProvider: "anthropic", ModelName: "sonnet"}, "anthropic/sonnet"},
		{AgentPrefs{ModelProvider: "anthropic", ModelName: "x/y"}, "x/y"},
	}
	for _, c := range cases {
		if got := llm.pickModel("gpt-4o-mini", c.prefs); got != c.want {
			t.Fatalf("pickModel(%+v) = %q, want %q", c.prefs, got, c.want)
		}
	}
}

func TestCompleteJSONNoRetryWhenDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Pipeline.RetryOnParseFailure = false
	fake := &fakeCompleter{responses: map[string][]string{
		provider.RequestRouter: {"not json", `{"a":1}`},
	}}
	llm := newLLMClient(cfg, resolveFake(fake))

	var out map[string]any
	err := llm.completeJSON(context.Background(), provider.RequestRouter, "m", "p", &out)
	if err == nil {
		t.Fatal("parse failure with retry disabled must surface an error")
	}
	if len(fake.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(fake.calls))
	}
}

func TestRouterRejectsMissingNeedsTools(t *testing.T) {
	// Valid JSON missing the required boolean field counts as a parse
	// failure and so goes through the retry path.
	fake := &fakeCompleter{responses: map[string][]string{
		provider.RequestRouter: {
			`{"high_level_goal": "something"}`,
			`{"needs_tools": true, "high_level_goal": "something", "rationale": ""}`,
		},
	}}
	llm := newLLMClient(config.DefaultConfig(), resolveFake(fake))
	r := NewRouter(llm)

	decision, err := r.Decide(context.Background(), &ContextBundle{UserMessage: "x"})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !decision.NeedsTools {
		t.Fatal("expected needs_tools=true after retry")
	}
	if len(fake.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(fake.calls))
	}
}
