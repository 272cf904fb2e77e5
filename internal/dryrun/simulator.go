// Package dryrun predicts the effect of an operation without executing it.
package dryrun

import (
	"fmt"
	"strings"

	"github.com/ToolGate/ToolGate/internal/policy"
	"github.com/ToolGate/ToolGate/internal/redact"
	"github.com/ToolGate/ToolGate/internal/risk"
)

// Result is the outcome of a simulation.
type Result struct {
	Operation        risk.Operation   `json:"operation"` // echoed back with secrets redacted
	WouldExecute     bool             `json:"wouldExecute"`
	PolicyDenied     bool             `json:"policyDenied"`
	Risk             *risk.Assessment `json:"risk,omitempty"` // nil when blocked by policy
	PredictedChanges []string         `json:"predictedChanges"`
	Warnings         []string         `json:"warnings"`
}

// Simulator predicts operation effects using the policy registry and risk
// scorer.
type Simulator struct {
	policies *policy.Registry
	scorer   *risk.Scorer
	detector *redact.Detector
}

// NewSimulator creates a simulator.
func NewSimulator(policies *policy.Registry, scorer *risk.Scorer) *Simulator {
	return &Simulator{
		policies: policies,
		scorer:   scorer,
		detector: redact.NewDefaultDetector(),
	}
}

// Simulate dispatches on the operation kind.
func (s *Simulator) Simulate(op risk.Operation) Result {
	switch op.Kind {
	case risk.KindCommand:
		return s.SimulateCommand(op)
	case risk.KindFile:
		return s.SimulateFileOperation(op)
	case risk.KindNetwork:
		return s.SimulateNetworkOperation(op)
	default:
		return s.SimulateToolCall(op)
	}
}

// SimulateToolCall predicts the effect of a tool invocation.
func (s *Simulator) SimulateToolCall(op risk.Operation) Result {
	decision := s.policies.IsToolAllowed(op.ToolID)
	if !decision.Allowed && decision.MatchedRule != nil {
		return s.blocked(op, fmt.Sprintf("BLOCKED: tool %s denied by policy (%s)", op.ToolID, decision.Reason))
	}

	assessment := s.scorer.ScoreToolCall(op.ToolID, op.Params)
	changes := []string{fmt.Sprintf("invoke tool %s with %d argument(s)", op.ToolID, len(op.Params))}
	return s.finish(op, assessment, changes)
}

// commandEffects maps binary names to a human-readable effect description.
var commandEffects = map[string]string{
	"rm":    "remove files or directories",
	"mv":    "move or rename files",
	"cp":    "copy files",
	"mkdir": "create directories",
	"touch": "create or update files",
	"chmod": "change file permissions",
	"chown": "change file ownership",
	"git":   "modify repository state",
	"curl":  "perform network request",
	"wget":  "download from network",
	"dd":    "write raw data",
	"tar":   "archive or extract files",
	"kill":  "terminate processes",
	"ln":    "create links",
	"sed":   "edit file contents",
}

// SimulateCommand predicts the effect of a shell command.
func (s *Simulator) SimulateCommand(op risk.Operation) Result {
	decision := s.policies.IsCommandAllowed(op.Command)
	if !decision.Allowed && decision.MatchedRule != nil {
		return s.blocked(op, fmt.Sprintf("BLOCKED: command denied by policy (%s)", decision.Reason))
	}

	assessment := s.scorer.ScoreCommand(op.Command, op.WorkingDir)

	var changes []string
	binary := commandBinary(op.Command)
	if effect, ok := commandEffects[binary]; ok {
		changes = append(changes, fmt.Sprintf("%s: %s", binary, effect))
	} else if binary != "" {
		changes = append(changes, fmt.Sprintf("run %s", binary))
	}
	if target := redirectionTarget(op.Command); target != "" {
		changes = append(changes, fmt.Sprintf("write output to %s", target))
	}

	return s.finish(op, assessment, changes)
}

// SimulateFileOperation predicts the effect of a filesystem operation.
func (s *Simulator) SimulateFileOperation(op risk.Operation) Result {
	decision := s.policies.IsPathAllowed(op.Path, op.FileOp)
	if !decision.Allowed && decision.MatchedRule != nil {
		return s.blocked(op, fmt.Sprintf("BLOCKED: path %s denied by policy (%s)", op.Path, decision.Reason))
	}

	assessment := s.scorer.ScoreFileOperation(op.Path, op.FileOp, op.FileCount)

	var change string
	switch op.FileOp {
	case "delete":
		change = fmt.Sprintf("delete %s", op.Path)
	case "create":
		change = fmt.Sprintf("create %s", op.Path)
	case "write":
		change = fmt.Sprintf("modify %s", op.Path)
	default:
		change = fmt.Sprintf("read %s", op.Path)
	}
	changes := []string{change}
	if op.FileCount > 1 {
		changes = append(changes, fmt.Sprintf("affects %d files", op.FileCount))
	}

	return s.finish(op, assessment, changes)
}

// SimulateNetworkOperation predicts the effect of a network request.
func (s *Simulator) SimulateNetworkOperation(op risk.Operation) Result {
	decision := s.policies.IsDomainAllowed(op.Domain)
	if !decision.Allowed && decision.MatchedRule != nil {
		return s.blocked(op, fmt.Sprintf("BLOCKED: domain %s denied by policy (%s)", op.Domain, decision.Reason))
	}

	assessment := s.scorer.ScoreNetworkOperation(op.Domain, op.Method, op.HasBody, op.Headers)

	method := strings.ToUpper(op.Method)
	if method == "" {
		method = "GET"
	}
	changes := []string{fmt.Sprintf("%s request to %s", method, op.Domain)}
	if op.HasBody {
		changes = append(changes, fmt.Sprintf("upload request body to %s", op.Domain))
	}

	return s.finish(op, assessment, changes)
}

// blocked builds the short-circuit result for a policy denial. Risk is never
// computed for blocked operations.
func (s *Simulator) blocked(op risk.Operation, warning string) Result {
	return Result{
		Operation:    s.redactOperation(op),
		WouldExecute: false,
		PolicyDenied: true,
		Warnings:     []string{warning},
	}
}

// finish assembles the result for an operation that passed policy.
// WouldExecute is true only for auto-approved risk.
func (s *Simulator) finish(op risk.Operation, assessment risk.Assessment, changes []string) Result {
	r := Result{
		Operation:        s.redactOperation(op),
		Risk:             &assessment,
		PredictedChanges: changes,
		WouldExecute:     assessment.Action == risk.ActionAutoApprove,
	}
	if !r.WouldExecute {
		r.Warnings = append(r.Warnings, fmt.Sprintf(
			"REQUIRES APPROVAL: risk score %d (%s)", assessment.Score, assessment.Level))
	}
	return r
}

// redactOperation masks sensitive values before the operation is echoed back.
func (s *Simulator) redactOperation(op risk.Operation) risk.Operation {
	op.Params = s.detector.Params(op.Params)
	op.Command = s.detector.Redact(op.Command)
	op.FullContent = s.detector.Redact(op.FullContent)
	if op.Headers != nil {
		headers := make(map[string]string, len(op.Headers))
		for k, v := range op.Headers {
			if redact.IsSensitiveKey(k) || strings.EqualFold(k, "authorization") {
				headers[k] = "***"
				continue
			}
			headers[k] = v
		}
		op.Headers = headers
	}
	return op
}

// commandBinary extracts the binary name from a command line, skipping env
// assignments and a leading sudo.
func commandBinary(cmd string) string {
	fields := strings.Fields(cmd)
	for _, f := range fields {
		if strings.Contains(f, "=") && !strings.HasPrefix(f, "/") {
			continue
		}
		if f == "sudo" {
			continue
		}
		if i := strings.LastIndex(f, "/"); i >= 0 {
			f = f[i+1:]
		}
		return f
	}
	return ""
}

// redirectionTarget returns the target of the last ">" redirection, if any.
func redirectionTarget(cmd string) string {
	i := strings.LastIndex(cmd, ">")
	if i < 0 {
		return ""
	}
	rest := strings.TrimSpace(cmd[i+1:])
	if rest == "" {
		return ""
	}
	fields := strings.Fields(rest)
	return fields[0]
}
