package pipeline

import (
	"context"
	"net/url"
	"strings"

	"github.com/ToolGate/ToolGate/internal/approval"
	"github.com/ToolGate/ToolGate/internal/risk"
	"github.com/ToolGate/ToolGate/internal/store"
	"github.com/ToolGate/ToolGate/internal/tools"
)

// ApprovalGate stands between a planned step and its execution. A step
// runs only when the gate allows it: auto-approved risk, or a prior
// approved request covering the identical operation.
type ApprovalGate interface {
	GateOperation(ctx context.Context, op risk.Operation, conversationID, messageID string) (*approval.GateResult, error)
	ResolveMessageDecision(conversationID, text string) (*store.ApprovalRow, approval.Decision, error)
}

// operationForStep maps a plan step onto the operation shape the risk
// scorer understands. Builtin tools with a more specific shape get scored
// as that shape so their payloads see the full pattern analysis; anything
// else is scored as a generic tool call. ToolID and Params are kept on
// every shape so the snapshot identifies the originating step.
func operationForStep(step PlanStep) risk.Operation {
	op := risk.Operation{
		Kind:    risk.KindToolCall,
		ToolID:  step.ToolID,
		Params:  step.Args,
		Summary: "tool call: " + step.ToolID,
	}
	switch step.ToolID {
	case "shell.exec":
		op.Kind = risk.KindCommand
		op.Command = tools.GetString(step.Args, "command", "")
		op.WorkingDir = tools.GetString(step.Args, "working_dir", "")
		op.Summary = "run command: " + op.Command
		op.FullContent = op.Command
	case "http.fetch":
		rawURL := tools.GetString(step.Args, "url", "")
		op.Kind = risk.KindNetwork
		op.Domain = hostOf(rawURL)
		op.Method = strings.ToUpper(tools.GetString(step.Args, "method", "GET"))
		op.HasBody = tools.GetString(step.Args, "body", "") != ""
		op.Summary = op.Method + " " + rawURL
	case "fs.read":
		op.Kind = risk.KindFile
		op.Path = tools.GetString(step.Args, "path", "")
		op.FileOp = "read"
		op.FileCount = 1
		op.Summary = "read file: " + op.Path
	case "fs.list":
		op.Kind = risk.KindFile
		op.Path = tools.GetString(step.Args, "path", ".")
		op.FileOp = "read"
		op.FileCount = 1
		op.Summary = "list directory: " + op.Path
	case "fs.write":
		op.Kind = risk.KindFile
		op.Path = tools.GetString(step.Args, "path", "")
		op.FileOp = "write"
		op.FileCount = 1
		op.Summary = "write file: " + op.Path
		op.FullContent = tools.GetString(step.Args, "content", "")
	}
	return op
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if h := parsed.Hostname(); h != "" {
		return h
	}
	return rawURL
}
