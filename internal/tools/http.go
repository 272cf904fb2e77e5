package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ToolGate/ToolGate/internal/policy"
)

// maxFetchBytes bounds how much of a response body is returned to the LLM.
const maxFetchBytes = 256 * 1024

// FetchTool performs HTTP requests, gated by the domain policy.
type FetchTool struct {
	Policies *policy.Registry
	Client   *http.Client
}

func (t *FetchTool) Slug() string           { return "http.fetch" }
func (t *FetchTool) IsEnabled() bool        { return true }
func (t *FetchTool) Source() string         { return SourceBuiltin }
func (t *FetchTool) Capabilities() []string { return []string{"network"} }

func (t *FetchTool) Description() string {
	return "Perform an HTTP request and return the response body."
}

func (t *FetchTool) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to request",
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method, defaults to GET",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Optional request body",
			},
		},
		"required": []string{"url"},
	}
}

func (t *FetchTool) Call(ctx context.Context, args map[string]any, cc CallContext) CallResult {
	rawURL := GetString(args, "url", "")
	if rawURL == "" {
		return CallResult{Error: "url is required"}
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return CallResult{Error: fmt.Sprintf("invalid url: %s", rawURL)}
	}

	if t.Policies != nil {
		if d := t.Policies.IsDomainAllowed(parsed.Hostname()); !d.Allowed {
			return CallResult{Error: fmt.Sprintf("domain denied by policy: %s", d.Reason)}
		}
	}

	method := strings.ToUpper(GetString(args, "method", "GET"))
	var body io.Reader
	if b := GetString(args, "body", ""); b != "" {
		body = strings.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return CallResult{Error: fmt.Sprintf("create request: %v", err)}
	}

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return CallResult{Error: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return CallResult{Error: fmt.Sprintf("read response: %v", err)}
	}

	result := fmt.Sprintf("HTTP %d\n%s", resp.StatusCode, string(data))
	return CallResult{Success: resp.StatusCode < 400, Result: result}
}
