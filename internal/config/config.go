// Package config provides configuration types and loading for toolgate.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Pipeline, Models, Providers, Approval, Audit, Stream, Notify.
type Config struct {
	Paths     PathsConfig     `json:"paths"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Models    ModelsConfig    `json:"models"`
	Providers ProvidersConfig `json:"providers"`
	Approval  ApprovalConfig  `json:"approval"`
	Audit     AuditConfig     `json:"audit"`
	Tools     ToolsConfig     `json:"tools"`
	Stream    StreamConfig    `json:"stream"`
	Notify    NotifyConfig    `json:"notify"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	DataDir string `json:"dataDir" envconfig:"DATA_DIR"`
	DBFile  string `json:"dbFile" envconfig:"DB_FILE"`
}

// ---------------------------------------------------------------------------
// Pipeline – per-turn orchestration limits
// ---------------------------------------------------------------------------

// PipelineConfig groups the per-turn orchestration settings.
type PipelineConfig struct {
	// MaxSummaryLength bounds the conversation summary passed to the LLM.
	MaxSummaryLength int `json:"maxSummaryLength" envconfig:"MAX_SUMMARY_LENGTH"`
	// ToolPreviewCount is how many enabled tools are shown to the router.
	ToolPreviewCount int `json:"toolPreviewCount" envconfig:"TOOL_PREVIEW_COUNT"`
	// MaxSteps caps tool executions per turn (count-based circuit breaker).
	MaxSteps int `json:"maxSteps" envconfig:"MAX_STEPS"`
	// RetryOnParseFailure re-asks the LLM once when it returns invalid JSON.
	RetryOnParseFailure bool `json:"retryOnParseFailure" envconfig:"RETRY_ON_PARSE_FAILURE"`
}

// ---------------------------------------------------------------------------
// Models – per-role model selection
// ---------------------------------------------------------------------------

// ModelsConfig selects the model used by each pipeline role.
type ModelsConfig struct {
	DefaultProvider string `json:"defaultProvider" envconfig:"DEFAULT_PROVIDER"`
	Router          string `json:"router" envconfig:"ROUTER"`
	Selector        string `json:"selector" envconfig:"SELECTOR"`
	Summarizer      string `json:"summarizer" envconfig:"SUMMARIZER"`
	Composer        string `json:"composer" envconfig:"COMPOSER"`
	MaxTokens       int    `json:"maxTokens" envconfig:"MAX_TOKENS"`
}

// ---------------------------------------------------------------------------
// Providers – LLM API keys & endpoints
// ---------------------------------------------------------------------------

// ProvidersConfig contains LLM provider configurations.
type ProvidersConfig struct {
	OpenAI    ProviderConfig `json:"openai"`
	Anthropic ProviderConfig `json:"anthropic"`
	Custom    ProviderConfig `json:"custom"`
}

// ProviderConfig contains settings for a single LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
}

// ---------------------------------------------------------------------------
// Approval – human approval gates
// ---------------------------------------------------------------------------

// ApprovalConfig tunes the approval request lifecycle.
type ApprovalConfig struct {
	// TimeoutMinutes is how long a request stays pending before it times out.
	TimeoutMinutes int `json:"timeoutMinutes" envconfig:"TIMEOUT_MINUTES"`
	// Inline thresholds: content larger than any of these is persisted as an
	// artifact for modal rendering instead of being shown inline.
	MaxInlineWords int `json:"maxInlineWords" envconfig:"MAX_INLINE_WORDS"`
	MaxInlineChars int `json:"maxInlineChars" envconfig:"MAX_INLINE_CHARS"`
	MaxInlineLines int `json:"maxInlineLines" envconfig:"MAX_INLINE_LINES"`
}

// ---------------------------------------------------------------------------
// Audit – per-turn audit records
// ---------------------------------------------------------------------------

// AuditConfig controls the audit trail.
type AuditConfig struct {
	Enabled    bool `json:"enabled" envconfig:"ENABLED"`
	RedactLogs bool `json:"redactLogs" envconfig:"REDACT_LOGS"`
}

// ---------------------------------------------------------------------------
// Tools – registry behaviour
// ---------------------------------------------------------------------------

// ToolsConfig tunes the tool registry.
type ToolsConfig struct {
	// AllowList restricts selectable tools. Empty means no restriction.
	AllowList []string `json:"allowList"`
	// ExternalCacheTTL bounds the age of externally discovered tool definitions.
	ExternalCacheTTL time.Duration `json:"externalCacheTTL" envconfig:"EXTERNAL_CACHE_TTL"`
	// AutoRefresh refreshes the external cache before tool selection when stale.
	AutoRefresh bool `json:"autoRefresh" envconfig:"AUTO_REFRESH"`
	// ExecTimeout bounds a single shell.exec invocation.
	ExecTimeout time.Duration `json:"execTimeout" envconfig:"EXEC_TIMEOUT"`
	// Workspace is the working directory for filesystem and shell tools.
	Workspace string `json:"workspace" envconfig:"WORKSPACE"`
}

// ---------------------------------------------------------------------------
// Stream – Kafka event mirror
// ---------------------------------------------------------------------------

// StreamConfig configures the optional Kafka mirror for pipeline events.
type StreamConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	Brokers string `json:"brokers" envconfig:"BROKERS"`
	Topic   string `json:"topic" envconfig:"TOPIC"`
}

// ---------------------------------------------------------------------------
// Notify – approval notifications
// ---------------------------------------------------------------------------

// NotifyConfig configures outbound approval notifications.
type NotifyConfig struct {
	Slack SlackConfig `json:"slack"`
}

// SlackConfig configures the Slack approval notifier.
type SlackConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	Token   string `json:"token" envconfig:"TOKEN"`
	Channel string `json:"channel" envconfig:"CHANNEL"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir: "~/.toolgate",
			DBFile:  "toolgate.db",
		},
		Pipeline: PipelineConfig{
			MaxSummaryLength:    2000,
			ToolPreviewCount:    10,
			MaxSteps:            8,
			RetryOnParseFailure: true,
		},
		Models: ModelsConfig{
			DefaultProvider: "openai",
			Router:          "gpt-4o-mini",
			Selector:        "gpt-4o-mini",
			Summarizer:      "gpt-4o-mini",
			Composer:        "gpt-4o",
			MaxTokens:       4096,
		},
		Approval: ApprovalConfig{
			TimeoutMinutes: 30,
			MaxInlineWords: 300,
			MaxInlineChars: 2000,
			MaxInlineLines: 40,
		},
		Audit: AuditConfig{
			Enabled:    true,
			RedactLogs: true,
		},
		Tools: ToolsConfig{
			ExternalCacheTTL: 5 * time.Minute,
			AutoRefresh:      true,
			ExecTimeout:      60 * time.Second,
			Workspace:        "~/toolgate",
		},
		Stream: StreamConfig{
			Topic: "toolgate.events",
		},
		Notify: NotifyConfig{},
	}
}
