package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ToolGate/ToolGate/internal/approval"
	"github.com/ToolGate/ToolGate/internal/config"
	"github.com/ToolGate/ToolGate/internal/tools"
)

// ToolResult is the normalized outcome of one executed plan step.
type ToolResult struct {
	ToolID     string         `json:"tool_id"`
	Args       map[string]any `json:"args"`
	Result     any            `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	ElapsedMs  int64          `json:"elapsed_ms"`
	Success    bool           `json:"success"`
	ApprovalID string         `json:"approval_id,omitempty"` // set when the step ran under a prior approval
}

// ExecutionTrace is the append-only record of one plan execution.
type ExecutionTrace struct {
	CorrelationID   string            `json:"correlation_id"`
	Steps           []ToolResult      `json:"steps"`
	TotalElapsedMs  int64             `json:"total_elapsed_ms"`
	PendingApproval *approval.Request `json:"pending_approval,omitempty"`
}

// Runner executes tool plans sequentially against the registry. Steps are
// never parallel: each side effect must be individually risk-gated and
// auditable before the next one runs.
type Runner struct {
	registry *tools.Registry
	gate     ApprovalGate
	cfg      config.PipelineConfig
}

// NewRunner creates a runner. A nil gate disables gating; production
// wiring always passes one.
func NewRunner(registry *tools.Registry, gate ApprovalGate, cfg config.PipelineConfig) *Runner {
	return &Runner{registry: registry, gate: gate, cfg: cfg}
}

// Execute runs every plan step in order and returns the trace.
func (r *Runner) Execute(ctx context.Context, plan *ToolPlan, correlationID string, cc tools.CallContext) *ExecutionTrace {
	return r.ExecuteStreaming(ctx, plan, correlationID, cc, nil)
}

// ExecuteStreaming runs the plan, calling emit after each completed step.
// Execution stops early once the configured step limit is reached; that is
// a circuit breaker, not an error.
func (r *Runner) ExecuteStreaming(ctx context.Context, plan *ToolPlan, correlationID string, cc tools.CallContext, emit func(ToolResult)) *ExecutionTrace {
	trace := &ExecutionTrace{CorrelationID: correlationID}
	cc.CorrelationID = correlationID

	for i, step := range plan.PlanSteps {
		if r.cfg.MaxSteps > 0 && i >= r.cfg.MaxSteps {
			slog.Warn("Step limit reached, skipping remaining plan steps",
				"correlation", correlationID,
				"max_steps", r.cfg.MaxSteps,
				"skipped", len(plan.PlanSteps)-i)
			break
		}
		result := r.gateAndRun(ctx, step, cc, trace)
		trace.Steps = append(trace.Steps, result)
		trace.TotalElapsedMs += result.ElapsedMs
		if emit != nil {
			emit(result)
		}
		if trace.PendingApproval != nil {
			slog.Info("Execution paused pending approval",
				"correlation", correlationID,
				"approval", trace.PendingApproval.ApprovalID,
				"skipped", len(plan.PlanSteps)-i-1)
			break
		}
	}
	return trace
}

// gateAndRun risk-gates one step and runs it only when allowed. A denied
// or gate-failed step becomes a failed result and the plan continues; a
// step that needs human approval records the pending request on the trace
// so the caller stops the plan there.
func (r *Runner) gateAndRun(ctx context.Context, step PlanStep, cc tools.CallContext, trace *ExecutionTrace) ToolResult {
	if r.gate == nil {
		return r.runStep(ctx, step, cc)
	}

	verdict, err := r.gate.GateOperation(ctx, operationForStep(step), cc.ConversationID, cc.MessageID)
	if err != nil {
		slog.Error("Approval gate failed, refusing step", "tool", step.ToolID, "error", err)
		return ToolResult{ToolID: step.ToolID, Args: step.Args, Error: "approval gate unavailable"}
	}
	switch {
	case verdict.Denied:
		slog.Warn("Step denied by policy", "tool", step.ToolID, "correlation", trace.CorrelationID)
		return ToolResult{ToolID: step.ToolID, Args: step.Args, Error: "denied by policy"}
	case !verdict.Allowed:
		trace.PendingApproval = verdict.Request
		return ToolResult{
			ToolID: step.ToolID,
			Args:   step.Args,
			Error:  "approval required: " + verdict.Request.ApprovalID,
		}
	}

	result := r.runStep(ctx, step, cc)
	result.ApprovalID = verdict.ApprovalID
	return result
}

// runStep resolves and invokes one tool, converting every failure mode —
// unknown tool, disabled tool, error, panic — into a failed ToolResult so
// the rest of the plan still runs.
func (r *Runner) runStep(ctx context.Context, step PlanStep, cc tools.CallContext) (result ToolResult) {
	result = ToolResult{ToolID: step.ToolID, Args: step.Args}
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Tool panicked", "tool", step.ToolID, "panic", rec)
			result.Success = false
			result.Result = nil
			result.Error = fmt.Sprintf("tool panicked: %v", rec)
		}
		result.ElapsedMs = time.Since(start).Milliseconds()
	}()

	tool, ok := r.registry.Get(step.ToolID)
	if !ok {
		result.Error = fmt.Sprintf("unknown tool: %s", step.ToolID)
		return result
	}
	if !tool.IsEnabled() {
		result.Error = fmt.Sprintf("tool disabled: %s", step.ToolID)
		return result
	}

	out := tool.Call(ctx, step.Args, cc)
	result.Success = out.Success
	result.Result = out.Result
	result.Error = out.Error
	return result
}
