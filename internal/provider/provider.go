// Package provider implements the text-completion capability and provider
// resolution.
package provider

import (
	"context"
	"fmt"
)

// Request types identify which pipeline role issued a completion call.
const (
	RequestRouter     = "router"
	RequestSelector   = "tool_selector"
	RequestSummarizer = "summarizer"
	RequestComposer   = "composer"
)

// Request contains the parameters for a text completion.
type Request struct {
	Prompt      string  `json:"prompt"`
	RequestType string  `json:"request_type"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// Response contains the completion text and optional usage data.
type Response struct {
	Text  string `json:"text"`
	Usage *Usage `json:"usage,omitempty"`
}

// Usage contains token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completer is the interface for text-completion clients.
type Completer interface {
	// GenerateText sends a completion request and returns the response.
	GenerateText(ctx context.Context, req *Request) (*Response, error)
	// Provider returns the canonical provider id the client talks to.
	Provider() string
}

// ProviderError is returned when a provider cannot be constructed.
type ProviderError struct {
	Provider string
	Hint     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q: %s", e.Provider, e.Hint)
}
