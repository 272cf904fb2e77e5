package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ToolGate/ToolGate/internal/provider"
)

const composeDirectPrompt = `You are an assistant replying to the user.

Conversation so far:
%s

User message:
%s

Reply helpfully and concisely.`

const composeSummaryPrompt = `You are an assistant replying to the user
after tools were run on their behalf.

User message:
%s

Outcome of the tool run (JSON):
%s

Write the final reply to the user based on this outcome. Do not mention
internal tooling.`

// lowConfidence marks summaries whose rendering gets a disclaimer.
const lowConfidence = 0.7

// Composer produces the user-facing final message.
type Composer struct {
	llm *llmClient
}

// NewComposer creates a composer.
func NewComposer(llm *llmClient) *Composer {
	return &Composer{llm: llm}
}

// Compose writes the final message. With no summary (the router skipped
// tools) it answers directly from context. With a summary it renders the
// summary through the model, degrading to a deterministic textual rendering
// on any failure. The provider and model actually used are returned for
// the final_message event.
func (c *Composer) Compose(ctx context.Context, bundle *ContextBundle, summary *OutcomeSummary, correlationID string) (message, providerID, model string, err error) {
	model = c.llm.pickModel(c.llm.cfg.Models.Composer, bundle.AgentPrefs)
	providerID, _ = provider.InferProvider(model, c.llm.cfg.Models.DefaultProvider)

	if summary == nil {
		prompt := fmt.Sprintf(composeDirectPrompt, orNone(bundle.ConversationSummary), bundle.UserMessage)
		text, err := c.llm.completeText(ctx, provider.RequestComposer, model, prompt, 0.7)
		if err != nil {
			return "", providerID, model, fmt.Errorf("compose direct response: %w", err)
		}
		return strings.TrimSpace(text), providerID, model, nil
	}

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		summaryJSON = []byte(summary.ShortSummary)
	}
	prompt := fmt.Sprintf(composeSummaryPrompt, bundle.UserMessage, summaryJSON)
	text, err := c.llm.completeText(ctx, provider.RequestComposer, model, prompt, 0.7)
	if err != nil {
		slog.Warn("Composer fell back to deterministic rendering", "correlation", correlationID, "error", err)
		return renderSummary(summary), providerID, model, nil
	}
	return strings.TrimSpace(text), providerID, model, nil
}

// renderSummary is the deterministic fallback rendering of a summary.
func renderSummary(summary *OutcomeSummary) string {
	var b strings.Builder
	b.WriteString(summary.ShortSummary)
	for _, fact := range summary.KeyFacts {
		b.WriteString("\n- ")
		b.WriteString(fact)
	}
	for _, link := range summary.Links {
		b.WriteString("\n")
		b.WriteString(link)
	}
	if summary.Confidence < lowConfidence {
		b.WriteString("\n\n(Note: this result is based on a partial summary and may be incomplete.)")
	}
	return b.String()
}
