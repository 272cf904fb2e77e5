package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ToolGate/ToolGate/internal/config"
)

func TestValidateTable(t *testing.T) {
	if err := ValidateTable(); err != nil {
		t.Fatalf("built-in table must validate: %v", err)
	}
}

func TestInferProvider(t *testing.T) {
	cases := []struct {
		model        string
		wantProvider string
		wantModel    string
	}{
		{"gpt-4o", "openai", "gpt-4o"},
		{"o1-preview", "openai", "o1-preview"},
		{"claude-sonnet-4", "anthropic", "claude-sonnet-4"},
		{"Claude-Haiku", "anthropic", "Claude-Haiku"},
		{"mistral/mistral-large", "mistral", "mistral-large"},
		{"llama3", "custom", "llama3"},
	}
	for _, c := range cases {
		p, m := InferProvider(c.model, "custom")
		if p != c.wantProvider || m != c.wantModel {
			t.Fatalf("%s: got %s/%s want %s/%s", c.model, p, m, c.wantProvider, c.wantModel)
		}
	}
}

func TestResolveMissingKey(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := Resolve(cfg, "gpt-4o")
	if err == nil {
		t.Fatal("missing api key should fail")
	}
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Provider != "openai" {
		t.Fatalf("expected ProviderError for openai, got %v", err)
	}
}

func TestResolveUnknownProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := Resolve(cfg, "nobody/some-model")
	if err == nil {
		t.Fatal("unknown vendor should fail")
	}
}

func TestGenerateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %s", auth)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "gpt-4o-mini" {
			t.Errorf("unexpected model %v", body["model"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"needs_tools":false}`}},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient("openai", "test-key", srv.URL, "gpt-4o-mini")
	resp, err := c.GenerateText(context.Background(), &Request{
		Prompt:      "route this",
		RequestType: RequestRouter,
		Temperature: 0.1,
	})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if resp.Text != `{"needs_tools":false}` {
		t.Fatalf("unexpected text: %s", resp.Text)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Fatalf("usage not parsed: %+v", resp.Usage)
	}
}

func TestGenerateTextAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenAIClient("openai", "k", srv.URL, "gpt-4o-mini")
	if _, err := c.GenerateText(context.Background(), &Request{Prompt: "x"}); err == nil {
		t.Fatal("non-200 should be an error")
	}
}
