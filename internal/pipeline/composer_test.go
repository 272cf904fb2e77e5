package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ToolGate/ToolGate/internal/config"
	"github.com/ToolGate/ToolGate/internal/provider"
)

func TestComposeDirect(t *testing.T) {
	fake := &fakeCompleter{responses: map[string][]string{
		provider.RequestComposer: {"  Sure, here you go.  "},
	}}
	c := NewComposer(newLLMClient(config.DefaultConfig(), resolveFake(fake)))

	message, providerID, model, err := c.Compose(context.Background(), &ContextBundle{UserMessage: "hi"}, nil, "corr-1")
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if message != "Sure, here you go." {
		t.Fatalf("message = %q", message)
	}
	if providerID != "openai" || model != "gpt-4o" {
		t.Fatalf("provider/model = %s/%s", providerID, model)
	}
}

func TestComposeDirectErrorSurfaces(t *testing.T) {
	resolve := func(string) (provider.Completer, error) { return nil, errors.New("down") }
	c := NewComposer(newLLMClient(config.DefaultConfig(), resolve))

	_, _, _, err := c.Compose(context.Background(), &ContextBundle{UserMessage: "hi"}, nil, "corr-1")
	if err == nil {
		t.Fatal("direct compose failure must surface")
	}
}

func TestComposeSummaryFallbackRendering(t *testing.T) {
	resolve := func(string) (provider.Completer, error) { return nil, errors.New("down") }
	c := NewComposer(newLLMClient(config.DefaultConfig(), resolve))

	summary := &OutcomeSummary{
		ShortSummary: "Read two files.",
		KeyFacts:     []string{"a.txt exists", "b.txt exists"},
		Links:        []string{"https://example.com/report"},
		Confidence:   0.4,
	}
	message, _, _, err := c.Compose(context.Background(), &ContextBundle{UserMessage: "x"}, summary, "corr-1")
	if err != nil {
		t.Fatalf("summary compose must never error: %v", err)
	}
	if !strings.HasPrefix(message, "Read two files.") {
		t.Fatalf("message = %q", message)
	}
	if !strings.Contains(message, "- a.txt exists") || !strings.Contains(message, "https://example.com/report") {
		t.Fatalf("facts or links missing: %q", message)
	}
	if !strings.Contains(message, "may be incomplete") {
		t.Fatal("low-confidence disclaimer missing")
	}
}

func TestComposeSummaryHighConfidenceNoDisclaimer(t *testing.T) {
	resolve := func(string) (provider.Completer, error) { return nil, errors.New("down") }
	c := NewComposer(newLLMClient(config.DefaultConfig(), resolve))

	summary := &OutcomeSummary{ShortSummary: "Done.", Confidence: 0.95}
	message, _, _, err := c.Compose(context.Background(), &ContextBundle{UserMessage: "x"}, summary, "corr-1")
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if strings.Contains(message, "may be incomplete") {
		t.Fatalf("unexpected disclaimer: %q", message)
	}
}
