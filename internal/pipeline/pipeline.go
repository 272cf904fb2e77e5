package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ToolGate/ToolGate/internal/approval"
	"github.com/ToolGate/ToolGate/internal/config"
	"github.com/ToolGate/ToolGate/internal/redact"
	"github.com/ToolGate/ToolGate/internal/store"
	"github.com/ToolGate/ToolGate/internal/tools"
)

// eventBuffer bounds the per-turn event channel. A turn emits a handful of
// state events plus one per tool step, so this never blocks in practice.
const eventBuffer = 64

// EventSink mirrors pipeline events to an external transport. Publishing
// is best-effort: a sink failure never affects the turn.
type EventSink interface {
	Publish(ctx context.Context, ev Event)
}

// Pipeline sequences one user turn through context assembly, routing, tool
// selection, execution, summarization, and composition.
type Pipeline struct {
	broker     *ContextBroker
	router     *Router
	selector   *Selector
	runner     *Runner
	summarizer *Summarizer
	composer   *Composer

	store    *store.Store
	gate     ApprovalGate
	detector *redact.Detector
	cfg      *config.Config
	sink     EventSink
}

// New wires a pipeline from its stages. The store may be nil, in which
// case no audit records are written. The gate decides per step whether a
// planned operation may execute; a nil gate runs every step ungated and
// is only for wiring without an approval subsystem.
func New(cfg *config.Config, st *store.Store, registry *tools.Registry, external *tools.ExternalCache, gate ApprovalGate, resolve ResolveCompleter) *Pipeline {
	llm := newLLMClient(cfg, resolve)
	return &Pipeline{
		broker:     NewContextBroker(st, registry, cfg.Pipeline),
		router:     NewRouter(llm),
		selector:   NewSelector(llm, registry, external, cfg.Tools),
		runner:     NewRunner(registry, gate, cfg.Pipeline),
		summarizer: NewSummarizer(llm),
		composer:   NewComposer(llm),
		store:      st,
		gate:       gate,
		detector:   redact.NewDefaultDetector(),
		cfg:        cfg,
	}
}

// SetSink attaches an optional event mirror.
func (p *Pipeline) SetSink(sink EventSink) { p.sink = sink }

// Run executes one turn and returns the event stream. The stream always
// terminates with exactly one final_message or error event followed by
// done, after which the channel is closed.
func (p *Pipeline) Run(ctx context.Context, sessionID, conversationID, userMessage string) <-chan Event {
	events := make(chan Event, eventBuffer)
	correlationID := uuid.NewString()

	go func() {
		defer close(events)
		t := &turn{
			p:              p,
			events:         events,
			correlationID:  correlationID,
			sessionID:      sessionID,
			conversationID: conversationID,
		}
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Pipeline panicked", "correlation", correlationID, "panic", rec)
				t.emit(Event{Type: EventError, Error: "internal pipeline error"})
				t.emit(Event{Type: EventDone})
			}
		}()
		t.run(ctx, userMessage)
	}()
	return events
}

// turn holds the state of one Run invocation.
type turn struct {
	p              *Pipeline
	events         chan<- Event
	correlationID  string
	sessionID      string
	conversationID string

	decision *RouterDecision
	plan     *ToolPlan
	trace    *ExecutionTrace
	summary  *OutcomeSummary
}

func (t *turn) emit(ev Event) {
	ev.CorrelationID = t.correlationID
	ev.Ts = time.Now()
	t.events <- ev
	if t.p.sink != nil {
		t.p.sink.Publish(context.Background(), ev)
	}
}

// fail is the single error exit: one error event, then done.
func (t *turn) fail(stage string, err error) {
	slog.Error("Pipeline stage failed", "correlation", t.correlationID, "stage", stage, "error", err)
	t.emit(Event{Type: EventError, Error: stage + " failed"})
	t.emit(Event{Type: EventDone})
}

// run walks the state machine. Event order follows the transitions:
// pipeline_start, context_assembled, router_decision, then either a direct
// compose or the plan/execute/summarize/compose path, then final_message
// and done.
func (t *turn) run(ctx context.Context, userMessage string) {
	t.emit(Event{Type: EventPipelineStart})

	if t.resolveApprovalMessage(userMessage) {
		return
	}

	bundle, err := t.p.broker.Assemble(t.sessionID, userMessage)
	if err != nil {
		t.fail("context assembly", err)
		return
	}
	t.emit(Event{Type: EventContextAssembled, Context: bundle})

	t.decision, err = t.p.router.Decide(ctx, bundle)
	if err != nil {
		t.fail("routing", err)
		return
	}
	t.emit(Event{Type: EventRouterDecision, Decision: t.decision})

	if !t.decision.NeedsTools {
		t.compose(ctx, bundle, nil)
		return
	}

	t.plan, err = t.p.selector.SelectTools(ctx, t.decision.HighLevelGoal, bundle)
	if err != nil {
		t.fail("tool selection", err)
		return
	}
	t.emit(Event{Type: EventToolPlan, Plan: t.plan})

	if len(t.plan.PlanSteps) == 0 {
		t.compose(ctx, bundle, nil)
		return
	}

	cc := tools.CallContext{SessionID: t.sessionID, ConversationID: t.conversationID}
	t.trace = t.p.runner.ExecuteStreaming(ctx, t.plan, t.correlationID, cc, func(result ToolResult) {
		r := result
		t.emit(Event{Type: EventToolResult, Result: &r})
	})
	if t.trace.PendingApproval != nil {
		t.emit(Event{Type: EventApprovalRequired, Approval: t.trace.PendingApproval})
	}
	t.emit(Event{Type: EventExecutionComplete, Trace: t.trace})

	t.emit(Event{Type: EventSummarizing})
	t.summary = t.p.summarizer.Summarize(ctx, t.trace, bundle.AgentPrefs)
	t.emit(Event{Type: EventSummary, Summary: t.summary})

	t.compose(ctx, bundle, t.summary)
}

// resolveApprovalMessage treats the user message as a possible decision on
// the conversation's pending approval request. When a decision is detected
// and applied, the turn answers with a deterministic acknowledgment and
// normal routing is skipped. Ambiguous messages fall through to routing.
func (t *turn) resolveApprovalMessage(userMessage string) bool {
	if t.p.gate == nil || t.conversationID == "" {
		return false
	}
	row, decision, err := t.p.gate.ResolveMessageDecision(t.conversationID, userMessage)
	if err != nil {
		slog.Warn("Approval message resolution failed", "correlation", t.correlationID, "error", err)
		return false
	}
	if row == nil {
		return false
	}

	var message string
	if decision == approval.DecisionApprove {
		message = fmt.Sprintf("Approved: %s. Re-run the request and it will execute under approval %s.",
			row.Summary, row.ApprovalID)
	} else {
		message = fmt.Sprintf("Rejected: %s. The operation will not run.", row.Summary)
	}
	slog.Info("Approval decided from message",
		"correlation", t.correlationID, "approval", row.ApprovalID, "decision", string(decision))
	t.emit(Event{Type: EventFinalMessage, Message: message})
	t.writeAudit(message)
	t.emit(Event{Type: EventDone})
	return true
}

// compose emits composing, final_message, done, and writes the audit
// record. With a summary present Compose never errors (it falls back to a
// deterministic rendering), so the error path here is the direct-response
// branch only.
func (t *turn) compose(ctx context.Context, bundle *ContextBundle, summary *OutcomeSummary) {
	t.emit(Event{Type: EventComposing})

	message, providerID, model, err := t.p.composer.Compose(ctx, bundle, summary, t.correlationID)
	if err != nil {
		t.fail("composition", err)
		return
	}
	t.emit(Event{
		Type:      EventFinalMessage,
		Message:   message,
		Provider:  providerID,
		Model:     model,
		UsedTools: t.trace != nil,
	})
	t.writeAudit(message)
	t.emit(Event{Type: EventDone})
}

// writeAudit persists one redacted record of the whole turn.
func (t *turn) writeAudit(finalMessage string) {
	if t.p.store == nil || !t.p.cfg.Audit.Enabled {
		return
	}
	record := map[string]any{
		"decision":      t.decision,
		"plan":          t.plan,
		"trace":         t.trace,
		"summary":       t.summary,
		"final_message": finalMessage,
	}
	raw, err := json.Marshal(record)
	if err != nil {
		slog.Warn("Audit record encode failed", "correlation", t.correlationID, "error", err)
		return
	}
	payload := string(raw)
	if t.p.cfg.Audit.RedactLogs {
		payload = t.p.detector.Redact(payload)
	}
	if err := t.p.store.InsertAuditRecord(&store.AuditRow{
		AuditID:        uuid.NewString(),
		CorrelationID:  t.correlationID,
		SessionID:      t.sessionID,
		ConversationID: t.conversationID,
		RecordJSON:     payload,
		CreatedAt:      time.Now(),
	}); err != nil {
		slog.Warn("Audit record write failed", "correlation", t.correlationID, "error", err)
	}
}
