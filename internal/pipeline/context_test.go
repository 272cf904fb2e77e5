package pipeline

import (
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ToolGate/ToolGate/internal/config"
	"github.com/ToolGate/ToolGate/internal/store"
	"github.com/ToolGate/ToolGate/internal/tools"
)

func TestAssembleSessionless(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(&fakeTool{slug: "fs.read", enabled: true})
	registry.Register(&fakeTool{slug: "fs.write", enabled: false})

	b := NewContextBroker(nil, registry, config.PipelineConfig{ToolPreviewCount: 10})
	bundle, err := b.Assemble("", "hello")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if bundle.UserMessage != "hello" || bundle.ConversationSummary != "" {
		t.Fatalf("unexpected bundle: %+v", bundle)
	}
	if len(bundle.ToolRegistryPreview) != 1 || bundle.ToolRegistryPreview[0].Slug != "fs.read" {
		t.Fatalf("preview must contain enabled tools only: %+v", bundle.ToolRegistryPreview)
	}
}

func TestAssembleToolPreviewCap(t *testing.T) {
	registry := tools.NewRegistry()
	for _, slug := range []string{"a.one", "b.two", "c.three", "d.four"} {
		registry.Register(&fakeTool{slug: slug, enabled: true})
	}
	b := NewContextBroker(nil, registry, config.PipelineConfig{ToolPreviewCount: 2})
	bundle, err := b.Assemble("", "x")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	// First N enabled tools in registry order, no ranking.
	if len(bundle.ToolRegistryPreview) != 2 ||
		bundle.ToolRegistryPreview[0].Slug != "a.one" ||
		bundle.ToolRegistryPreview[1].Slug != "b.two" {
		t.Fatalf("unexpected preview: %+v", bundle.ToolRegistryPreview)
	}
}

func TestAssembleSummaryFromRecentMessages(t *testing.T) {
	st, err := store.NewStore(filepath.Join(t.TempDir(), "toolgate.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	long := strings.Repeat("x", 500)
	for _, msg := range []struct{ role, content string }{
		{"user", "first question"},
		{"assistant", "first answer"},
		{"user", long},
	} {
		if err := st.AppendMessage("sess-1", msg.role, msg.content); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	b := NewContextBroker(st, tools.NewRegistry(), config.PipelineConfig{MaxSummaryLength: 2000})
	bundle, err := b.Assemble("sess-1", "next")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	lines := strings.Split(bundle.ConversationSummary, "\n")
	if len(lines) != 3 {
		t.Fatalf("summary lines = %d, want 3:\n%s", len(lines), bundle.ConversationSummary)
	}
	if lines[0] != "user: first question" {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	// Long messages are capped per message.
	if len(lines[2]) > contextMessageCap+len("user: ")+len("...") {
		t.Fatalf("message not capped, len=%d", len(lines[2]))
	}
}

func TestAssembleSummaryCapKeepsRunesWhole(t *testing.T) {
	st, err := store.NewStore(filepath.Join(t.TempDir(), "toolgate.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	// 300 multi-byte runes: a byte-index cap would cut one in half.
	if err := st.AppendMessage("sess-1", "user", strings.Repeat("ü", 300)); err != nil {
		t.Fatalf("append: %v", err)
	}

	b := NewContextBroker(st, tools.NewRegistry(), config.PipelineConfig{MaxSummaryLength: 2000})
	bundle, err := b.Assemble("sess-1", "next")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !utf8.ValidString(bundle.ConversationSummary) {
		t.Fatalf("summary contains a broken rune: %q", bundle.ConversationSummary)
	}
	content := strings.TrimSuffix(strings.TrimPrefix(bundle.ConversationSummary, "user: "), "...")
	if got := utf8.RuneCountInString(content); got != contextMessageCap {
		t.Fatalf("capped at %d runes, want %d", got, contextMessageCap)
	}
}

func TestAssembleSummaryTrimsFromFrontAtLineBoundary(t *testing.T) {
	st, err := store.NewStore(filepath.Join(t.TempDir(), "toolgate.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	for i := 0; i < 6; i++ {
		if err := st.AppendMessage("sess-1", "user", strings.Repeat("m", 100)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	b := NewContextBroker(st, tools.NewRegistry(), config.PipelineConfig{MaxSummaryLength: 250})
	bundle, err := b.Assemble("sess-1", "next")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(bundle.ConversationSummary) > 250 {
		t.Fatalf("summary over budget: %d", len(bundle.ConversationSummary))
	}
	// Whole lines only: every line is a complete rendered message.
	for _, line := range strings.Split(bundle.ConversationSummary, "\n") {
		if !strings.HasPrefix(line, "user: ") {
			t.Fatalf("truncated mid-message: %q", line)
		}
	}
}

func TestAssemblePicksUpSessionPrefs(t *testing.T) {
	st, err := store.NewStore(filepath.Join(t.TempDir(), "toolgate.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	if err := st.SetSessionPrefs("sess-1", "anthropic", "claude-sonnet-4"); err != nil {
		t.Fatalf("prefs: %v", err)
	}

	b := NewContextBroker(st, tools.NewRegistry(), config.PipelineConfig{MaxSummaryLength: 2000})
	bundle, err := b.Assemble("sess-1", "hi")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if bundle.AgentPrefs.ModelProvider != "anthropic" || bundle.AgentPrefs.ModelName != "claude-sonnet-4" {
		t.Fatalf("prefs not picked up: %+v", bundle.AgentPrefs)
	}
}
