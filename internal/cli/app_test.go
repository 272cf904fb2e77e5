package cli

import (
	"path/filepath"
	"testing"
)

func TestBuildAppWiresEverything(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TOOLGATE_CONFIG", filepath.Join(dir, "config.json"))
	t.Setenv("TOOLGATE_PATHS_DATA_DIR", dir)

	a, err := buildApp()
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer a.Close()

	if a.pipeline == nil || a.approvals == nil || a.simulator == nil {
		t.Fatal("incomplete wiring")
	}
	if !a.registry.Exists("shell.exec") || !a.registry.Exists("http.fetch") {
		t.Fatal("builtin tools not registered")
	}
	if got := len(a.policies.Policies()); got == 0 {
		t.Fatal("default policies not loaded")
	}
}
