package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ToolGate/ToolGate/internal/policy"
)

// ExecTool executes shell commands, gated by the policy registry.
type ExecTool struct {
	Policies *policy.Registry
	Timeout  time.Duration
	WorkDir  string
}

func (t *ExecTool) Slug() string           { return "shell.exec" }
func (t *ExecTool) IsEnabled() bool        { return true }
func (t *ExecTool) Source() string         { return SourceBuiltin }
func (t *ExecTool) Capabilities() []string { return []string{"shell", "write"} }

func (t *ExecTool) Description() string {
	return "Execute a shell command and return its output."
}

func (t *ExecTool) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"working_dir": map[string]any{
				"type":        "string",
				"description": "Optional working directory",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ExecTool) Call(ctx context.Context, args map[string]any, cc CallContext) CallResult {
	command := GetString(args, "command", "")
	if command == "" {
		return CallResult{Error: "command is required"}
	}

	if t.Policies != nil {
		if d := t.Policies.IsCommandAllowed(command); !d.Allowed {
			return CallResult{Error: fmt.Sprintf("command denied by policy: %s", d.Reason)}
		}
	}

	timeout := t.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if dir := GetString(args, "working_dir", t.WorkDir); dir != "" {
		cmd.Dir = expandHome(dir)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := strings.TrimSpace(stdout.String())
	if errOut := strings.TrimSpace(stderr.String()); errOut != "" {
		if output != "" {
			output += "\n"
		}
		output += errOut
	}

	if ctx.Err() == context.DeadlineExceeded {
		return CallResult{Error: fmt.Sprintf("command timed out after %s", timeout)}
	}
	if err != nil {
		return CallResult{Error: fmt.Sprintf("command failed: %v\n%s", err, output)}
	}
	return CallResult{Success: true, Result: output}
}
