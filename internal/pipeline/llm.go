package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ToolGate/ToolGate/internal/config"
	"github.com/ToolGate/ToolGate/internal/provider"
)

// jsonTemperature is used for every structured-output call.
const jsonTemperature = 0.1

// ResolveCompleter returns a completion client for a model name. Injected
// so tests can script responses without a live provider.
type ResolveCompleter func(model string) (provider.Completer, error)

// llmClient wraps the completion capability with model resolution and the
// strict-JSON retry policy shared by the router, selector, and summarizer.
type llmClient struct {
	cfg     *config.Config
	resolve ResolveCompleter
}

func newLLMClient(cfg *config.Config, resolve ResolveCompleter) *llmClient {
	if resolve == nil {
		resolve = func(model string) (provider.Completer, error) {
			return provider.Resolve(cfg, model)
		}
	}
	return &llmClient{cfg: cfg, resolve: resolve}
}

// pickModel chooses the model for a stage: session preference wins over the
// configured role default. A provider preference prefixes the model so the
// resolution table routes it to the right vendor.
func (c *llmClient) pickModel(roleDefault string, prefs AgentPrefs) string {
	if prefs.ModelName == "" {
		return roleDefault
	}
	if prefs.ModelProvider != "" && !strings.Contains(prefs.ModelName, "/") {
		return prefs.ModelProvider + "/" + prefs.ModelName
	}
	return prefs.ModelName
}

// completeText issues one completion call and returns the raw text.
func (c *llmClient) completeText(ctx context.Context, requestType, model, prompt string, temperature float64) (string, error) {
	completer, err := c.resolve(model)
	if err != nil {
		return "", err
	}
	resp, err := completer.GenerateText(ctx, &provider.Request{
		Prompt:      prompt,
		RequestType: requestType,
		Model:       model,
		Temperature: temperature,
		MaxTokens:   c.cfg.Models.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", requestType, err)
	}
	return resp.Text, nil
}

// completeJSON issues a low-temperature completion and decodes the reply
// into out. On a parse failure it retries once with an explicit JSON-only
// instruction when the retry flag is set, otherwise the parse error is
// surfaced.
func (c *llmClient) completeJSON(ctx context.Context, requestType, model, prompt string, out any) error {
	text, err := c.completeText(ctx, requestType, model, prompt, jsonTemperature)
	if err != nil {
		return err
	}
	parseErr := json.Unmarshal([]byte(stripCodeFences(text)), out)
	if parseErr == nil {
		return nil
	}
	if !c.cfg.Pipeline.RetryOnParseFailure {
		return fmt.Errorf("%s returned invalid JSON: %w", requestType, parseErr)
	}

	slog.Warn("Invalid JSON from model, retrying once", "request_type", requestType, "model", model, "error", parseErr)
	text, err = c.completeText(ctx, requestType, model,
		prompt+"\n\nYour previous reply was not valid JSON. Respond with ONLY valid JSON, no prose, no code fences.",
		jsonTemperature)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripCodeFences(text)), out); err != nil {
		return fmt.Errorf("%s returned invalid JSON after retry: %w", requestType, err)
	}
	return nil
}

// stripCodeFences removes a surrounding markdown code fence, with or
// without a language tag.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		first := strings.TrimSpace(text[:i])
		if first == "" || isLanguageTag(first) {
			text = text[i+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
