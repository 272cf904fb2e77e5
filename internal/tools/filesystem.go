package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadFileTool reads the contents of a file.
type ReadFileTool struct{}

func (t *ReadFileTool) Slug() string           { return "fs.read" }
func (t *ReadFileTool) IsEnabled() bool        { return true }
func (t *ReadFileTool) Source() string         { return SourceBuiltin }
func (t *ReadFileTool) Capabilities() []string { return []string{"read"} }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file at the specified path."
}

func (t *ReadFileTool) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The path to the file to read",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Call(ctx context.Context, args map[string]any, cc CallContext) CallResult {
	path := GetString(args, "path", "")
	if path == "" {
		return CallResult{Error: "path is required"}
	}
	path = expandHome(path)

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return CallResult{Error: fmt.Sprintf("file not found: %s", path)}
		}
		if os.IsPermission(err) {
			return CallResult{Error: fmt.Sprintf("permission denied: %s", path)}
		}
		return CallResult{Error: fmt.Sprintf("read file: %v", err)}
	}
	return CallResult{Success: true, Result: string(content)}
}

// WriteFileTool writes content to a file under the workspace.
type WriteFileTool struct {
	Workspace string
}

func (t *WriteFileTool) Slug() string           { return "fs.write" }
func (t *WriteFileTool) IsEnabled() bool        { return true }
func (t *WriteFileTool) Source() string         { return SourceBuiltin }
func (t *WriteFileTool) Capabilities() []string { return []string{"write"} }

func (t *WriteFileTool) Description() string {
	return "Write content to a file. Creates parent directories if needed. Writes are restricted to the workspace."
}

func (t *WriteFileTool) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The path to the file to write",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The content to write to the file",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Call(ctx context.Context, args map[string]any, cc CallContext) CallResult {
	path := GetString(args, "path", "")
	if path == "" {
		return CallResult{Error: "path is required"}
	}
	path = expandHome(path)

	if t.Workspace != "" {
		ws := expandHome(t.Workspace)
		abs, err := filepath.Abs(path)
		if err != nil || !strings.HasPrefix(abs, ws) {
			return CallResult{Error: fmt.Sprintf("write outside workspace: %s", path)}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return CallResult{Error: fmt.Sprintf("create parent dirs: %v", err)}
	}
	content := GetString(args, "content", "")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return CallResult{Error: fmt.Sprintf("write file: %v", err)}
	}
	return CallResult{Success: true, Result: fmt.Sprintf("wrote %d bytes to %s", len(content), path)}
}

// ListDirTool lists directory entries.
type ListDirTool struct{}

func (t *ListDirTool) Slug() string           { return "fs.list" }
func (t *ListDirTool) IsEnabled() bool        { return true }
func (t *ListDirTool) Source() string         { return SourceBuiltin }
func (t *ListDirTool) Capabilities() []string { return []string{"read"} }

func (t *ListDirTool) Description() string {
	return "List the entries of a directory."
}

func (t *ListDirTool) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The directory to list",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ListDirTool) Call(ctx context.Context, args map[string]any, cc CallContext) CallResult {
	path := GetString(args, "path", ".")
	path = expandHome(path)

	entries, err := os.ReadDir(path)
	if err != nil {
		return CallResult{Error: fmt.Sprintf("list dir: %v", err)}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return CallResult{Success: true, Result: strings.Join(names, "\n")}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
