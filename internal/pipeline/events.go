// Package pipeline implements the tool-aware orchestration pipeline: one
// user turn flows through context assembly, routing, tool selection,
// risk-gated execution, summarization, and final composition, emitting a
// stream of typed progress events along the way.
package pipeline

import (
	"time"

	"github.com/ToolGate/ToolGate/internal/approval"
)

// EventType discriminates pipeline events.
type EventType string

// Event types, in state-machine emission order. Every run ends with exactly
// one of final_message or error, followed by done.
const (
	EventPipelineStart     EventType = "pipeline_start"
	EventContextAssembled  EventType = "context_assembled"
	EventRouterDecision    EventType = "router_decision"
	EventToolPlan          EventType = "tool_plan"
	EventToolResult        EventType = "tool_result"
	EventApprovalRequired  EventType = "approval_required"
	EventExecutionComplete EventType = "execution_complete"
	EventSummarizing       EventType = "summarizing"
	EventSummary           EventType = "summary"
	EventComposing         EventType = "composing"
	EventFinalMessage      EventType = "final_message"
	EventError             EventType = "error"
	EventDone              EventType = "done"
)

// Event is one typed progress event. Type selects which payload fields are
// populated.
type Event struct {
	Type          EventType `json:"type"`
	CorrelationID string    `json:"correlation_id"`
	Ts            time.Time `json:"ts"`

	Context  *ContextBundle    `json:"context,omitempty"`  // context_assembled
	Decision *RouterDecision   `json:"decision,omitempty"` // router_decision
	Plan     *ToolPlan         `json:"plan,omitempty"`     // tool_plan
	Result   *ToolResult       `json:"result,omitempty"`   // tool_result
	Approval *approval.Request `json:"approval,omitempty"` // approval_required
	Trace    *ExecutionTrace   `json:"trace,omitempty"`    // execution_complete
	Summary  *OutcomeSummary   `json:"summary,omitempty"`  // summary

	// final_message payload: the user-facing text plus the provider/model
	// that actually produced it.
	Message   string `json:"message,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	UsedTools bool   `json:"used_tools,omitempty"`

	Error string `json:"error,omitempty"` // error
}
