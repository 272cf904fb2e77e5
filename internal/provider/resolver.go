package provider

import (
	"fmt"
	"strings"

	"github.com/ToolGate/ToolGate/internal/config"
)

// ModelRule maps a model-name prefix to its canonical provider id.
type ModelRule struct {
	Prefix   string
	Provider string
}

// resolutionTable is the explicit provider-resolution table, scanned in
// order. "vendor/model" strings bypass the table entirely.
var resolutionTable = []ModelRule{
	{Prefix: "gpt-", Provider: "openai"},
	{Prefix: "o1-", Provider: "openai"},
	{Prefix: "o3-", Provider: "openai"},
	{Prefix: "claude-", Provider: "anthropic"},
}

// ValidateTable checks the resolution table for empty or duplicate prefixes.
// Called once at startup.
func ValidateTable() error {
	seen := make(map[string]bool, len(resolutionTable))
	for _, r := range resolutionTable {
		if r.Prefix == "" || r.Provider == "" {
			return fmt.Errorf("invalid resolution rule: %+v", r)
		}
		if seen[r.Prefix] {
			return fmt.Errorf("duplicate resolution prefix %q", r.Prefix)
		}
		seen[r.Prefix] = true
	}
	return nil
}

// InferProvider resolves a model string to (provider, model). A
// "vendor/model" form names the vendor explicitly; otherwise the resolution
// table is consulted; otherwise the configured default provider is used.
func InferProvider(model, defaultProvider string) (string, string) {
	model = strings.TrimSpace(model)
	if i := strings.Index(model, "/"); i > 0 {
		return strings.ToLower(model[:i]), model[i+1:]
	}
	lower := strings.ToLower(model)
	for _, r := range resolutionTable {
		if strings.HasPrefix(lower, r.Prefix) {
			return r.Provider, model
		}
	}
	return defaultProvider, model
}

// Resolve builds a Completer for the given model string.
// Session preference wins over config default; the provider is inferred from
// the model name.
func Resolve(cfg *config.Config, model string) (Completer, error) {
	providerID, modelName := InferProvider(model, cfg.Models.DefaultProvider)
	return buildCompleter(cfg, providerID, modelName)
}

// buildCompleter constructs a client from a canonical provider id.
func buildCompleter(cfg *config.Config, providerID, model string) (Completer, error) {
	switch providerID {
	case "openai":
		key := cfg.Providers.OpenAI.APIKey
		base := cfg.Providers.OpenAI.APIBase
		if key == "" {
			return nil, &ProviderError{Provider: "openai", Hint: "set providers.openai.apiKey in config or TOOLGATE_OPENAI_API_KEY"}
		}
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		return NewOpenAIClient("openai", key, base, model), nil

	case "anthropic":
		key := cfg.Providers.Anthropic.APIKey
		base := cfg.Providers.Anthropic.APIBase
		if key == "" {
			return nil, &ProviderError{Provider: "anthropic", Hint: "set providers.anthropic.apiKey in config or TOOLGATE_ANTHROPIC_API_KEY"}
		}
		if base == "" {
			base = "https://api.anthropic.com/v1"
		}
		return NewOpenAIClient("anthropic", key, base, model), nil

	case "custom":
		base := cfg.Providers.Custom.APIBase
		if base == "" {
			return nil, &ProviderError{Provider: "custom", Hint: "set providers.custom.apiBase (e.g. http://localhost:8000/v1)"}
		}
		return NewOpenAIClient("custom", cfg.Providers.Custom.APIKey, base, model), nil

	default:
		return nil, &ProviderError{Provider: providerID, Hint: "unknown provider id, supported: openai, anthropic, custom"}
	}
}
