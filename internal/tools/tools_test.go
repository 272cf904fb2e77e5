package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ToolGate/ToolGate/internal/policy"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(&ReadFileTool{})
	r.Register(&ListDirTool{})

	if !r.Exists("fs.read") {
		t.Fatal("fs.read should exist")
	}
	if r.Exists("nope") {
		t.Fatal("unknown tool should not exist")
	}
	tool, ok := r.Get("fs.list")
	if !ok || tool.Slug() != "fs.list" {
		t.Fatalf("Get returned wrong tool: %v %v", tool, ok)
	}
	all := r.All()
	if len(all) != 2 || all[0].Slug() != "fs.list" || all[1].Slug() != "fs.read" {
		t.Fatalf("All should be sorted by slug: %v", all)
	}
}

func TestReadFileTool(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := &ReadFileTool{}
	res := tool.Call(context.Background(), map[string]any{"path": path}, CallContext{})
	if !res.Success || res.Result != "hello" {
		t.Fatalf("unexpected result: %+v", res)
	}

	res = tool.Call(context.Background(), map[string]any{"path": filepath.Join(dir, "missing")}, CallContext{})
	if res.Success || !strings.Contains(res.Error, "not found") {
		t.Fatalf("expected not-found error: %+v", res)
	}

	res = tool.Call(context.Background(), nil, CallContext{})
	if res.Success || res.Error != "path is required" {
		t.Fatalf("expected required-arg error: %+v", res)
	}
}

func TestWriteFileToolRestrictedToWorkspace(t *testing.T) {
	ws := t.TempDir()
	tool := &WriteFileTool{Workspace: ws}

	inside := filepath.Join(ws, "a", "b.txt")
	res := tool.Call(context.Background(), map[string]any{"path": inside, "content": "data"}, CallContext{})
	if !res.Success {
		t.Fatalf("write inside workspace failed: %+v", res)
	}
	data, _ := os.ReadFile(inside)
	if string(data) != "data" {
		t.Fatalf("content mismatch: %s", data)
	}

	res = tool.Call(context.Background(), map[string]any{"path": "/tmp/outside.txt", "content": "x"}, CallContext{})
	if res.Success || !strings.Contains(res.Error, "outside workspace") {
		t.Fatalf("expected workspace restriction: %+v", res)
	}
}

func TestExecToolDeniedByPolicy(t *testing.T) {
	reg := policy.NewRegistry([]policy.Policy{
		{Type: policy.TypeCommand, Pattern: "echo *", Action: policy.ActionAllow, Priority: 10},
	}, time.Minute)
	tool := &ExecTool{Policies: reg, Timeout: 5 * time.Second}

	res := tool.Call(context.Background(), map[string]any{"command": "echo hi"}, CallContext{})
	if !res.Success || !strings.Contains(res.Result.(string), "hi") {
		t.Fatalf("allowed command failed: %+v", res)
	}

	res = tool.Call(context.Background(), map[string]any{"command": "rm -rf /"}, CallContext{})
	if res.Success || !strings.Contains(res.Error, "denied by policy") {
		t.Fatalf("expected policy denial: %+v", res)
	}
}

func TestFetchToolDeniedDomain(t *testing.T) {
	reg := policy.NewRegistry(nil, time.Minute)
	tool := &FetchTool{Policies: reg}
	res := tool.Call(context.Background(), map[string]any{"url": "https://evil.example.com/x"}, CallContext{})
	if res.Success || !strings.Contains(res.Error, "denied by policy") {
		t.Fatalf("default deny should block: %+v", res)
	}
}

type fakeDiscoverer struct {
	defs  []Definition
	err   error
	calls int
}

func (f *fakeDiscoverer) Discover(ctx context.Context) ([]Definition, error) {
	f.calls++
	return f.defs, f.err
}

func TestExternalCacheTTL(t *testing.T) {
	disc := &fakeDiscoverer{defs: []Definition{{Slug: "ext.search"}}}
	cache := NewExternalCache(disc, time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	defs := cache.Definitions(context.Background(), true)
	if len(defs) != 1 || disc.calls != 1 {
		t.Fatalf("first access should refresh: %v calls=%d", defs, disc.calls)
	}

	// Within TTL: no second discovery.
	cache.Definitions(context.Background(), true)
	if disc.calls != 1 {
		t.Fatalf("fresh cache should not refresh, calls=%d", disc.calls)
	}

	now = now.Add(2 * time.Minute)
	cache.Definitions(context.Background(), true)
	if disc.calls != 2 {
		t.Fatalf("stale cache should refresh, calls=%d", disc.calls)
	}
}

func TestExternalCacheServesStaleOnError(t *testing.T) {
	disc := &fakeDiscoverer{defs: []Definition{{Slug: "ext.search"}}}
	cache := NewExternalCache(disc, time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Definitions(context.Background(), true)
	disc.err = errors.New("upstream down")
	now = now.Add(2 * time.Minute)

	defs := cache.Definitions(context.Background(), true)
	if len(defs) != 1 {
		t.Fatalf("stale definitions should still be served: %v", defs)
	}
}
