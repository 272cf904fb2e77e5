// Package approval turns risky operations into persisted approval requests
// and tracks their pending/approved/rejected/timeout lifecycle.
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ToolGate/ToolGate/internal/config"
	"github.com/ToolGate/ToolGate/internal/dryrun"
	"github.com/ToolGate/ToolGate/internal/risk"
	"github.com/ToolGate/ToolGate/internal/store"
)

// ErrPolicyDenied is returned when the operation is blocked outright by
// policy. A blocked operation never gets an approval request: there is
// nothing a human could approve it into.
var ErrPolicyDenied = errors.New("operation denied by policy")

// Request is a live approval request, created from the dry-run and risk
// snapshot of one operation.
type Request struct {
	ApprovalID     string          `json:"approval_id"`
	ConversationID string          `json:"conversation_id"`
	MessageID      string          `json:"message_id,omitempty"`
	Operation      risk.Operation  `json:"operation"` // redacted snapshot
	DryRun         dryrun.Result   `json:"dry_run"`
	Risk           risk.Assessment `json:"risk"`
	Summary        string          `json:"summary"`
	ArtifactID     string          `json:"artifact_id,omitempty"` // set when content was too large to inline
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	TimeoutAt      time.Time       `json:"timeout_at"`
}

// Notifier is told about newly created approval requests. Implementations
// must be best-effort: a notification failure never fails the request.
type Notifier interface {
	NotifyApproval(ctx context.Context, req *Request) error
}

// Manager owns the approval request lifecycle.
type Manager struct {
	store    *store.Store
	sim      *dryrun.Simulator
	cfg      config.ApprovalConfig
	notifier Notifier

	now func() time.Time
}

// NewManager creates an approval manager backed by the given store and
// simulator.
func NewManager(st *store.Store, sim *dryrun.Simulator, cfg config.ApprovalConfig) *Manager {
	return &Manager{
		store: st,
		sim:   sim,
		cfg:   cfg,
		now:   time.Now,
	}
}

// SetNotifier attaches an optional notifier for new requests.
func (m *Manager) SetNotifier(n Notifier) { m.notifier = n }

// CreateApprovalRequest gates one operation. It times out any pending
// request in the same conversation first, so at most one request is ever
// live per conversation. Returns (nil, nil) when the operation's risk
// action is auto_approve, and ErrPolicyDenied when policy blocks the
// operation outright.
func (m *Manager) CreateApprovalRequest(ctx context.Context, op risk.Operation, conversationID, messageID string) (*Request, error) {
	now := m.now()

	expired, err := m.store.TimeoutPendingApprovals(conversationID, now)
	if err != nil {
		return nil, fmt.Errorf("timeout prior approvals: %w", err)
	}
	if expired > 0 {
		slog.Info("Superseded pending approvals", "conversation", conversationID, "count", expired)
	}

	res := m.sim.Simulate(op)
	if res.PolicyDenied {
		return nil, ErrPolicyDenied
	}
	if res.Risk.Action == risk.ActionAutoApprove {
		return nil, nil
	}

	req := &Request{
		ApprovalID:     uuid.NewString(),
		ConversationID: conversationID,
		MessageID:      messageID,
		Operation:      res.Operation,
		DryRun:         res,
		Risk:           *res.Risk,
		Summary:        op.Summary,
		Status:         "pending",
		CreatedAt:      now,
		TimeoutAt:      now.Add(time.Duration(m.cfg.TimeoutMinutes) * time.Minute),
	}

	content := op.FullContent
	if content == "" {
		content = op.Summary
	}
	if m.exceedsInline(content) {
		artifactID := uuid.NewString()
		if err := m.store.InsertArtifact(artifactID, "approval_content", content); err != nil {
			return nil, fmt.Errorf("persist approval artifact: %w", err)
		}
		req.ArtifactID = artifactID
	}

	row, err := m.toRow(req)
	if err != nil {
		return nil, err
	}
	if err := m.store.InsertApproval(row); err != nil {
		return nil, fmt.Errorf("persist approval: %w", err)
	}
	slog.Info("Approval request created",
		"approval", req.ApprovalID,
		"conversation", conversationID,
		"score", req.Risk.Score,
		"action", req.Risk.Action)

	if m.notifier != nil {
		if err := m.notifier.NotifyApproval(ctx, req); err != nil {
			slog.Warn("Approval notification failed", "approval", req.ApprovalID, "error", err)
		}
	}
	return req, nil
}

// GateResult is the gate's verdict on one prospective operation.
type GateResult struct {
	Allowed    bool             `json:"allowed"`
	Denied     bool             `json:"denied"`                // blocked outright by policy
	ApprovalID string           `json:"approval_id,omitempty"` // prior approved request honored
	Request    *Request         `json:"request,omitempty"`     // new pending request, when not allowed
	Risk       *risk.Assessment `json:"risk,omitempty"`
}

// GateOperation decides whether an operation may run now. Auto-approved
// risk passes straight through. Otherwise the conversation's approved
// requests are checked for a matching operation snapshot still inside its
// approval window; absent one, a new pending request is created and the
// operation must not run.
func (m *Manager) GateOperation(ctx context.Context, op risk.Operation, conversationID, messageID string) (*GateResult, error) {
	res := m.sim.Simulate(op)
	if res.PolicyDenied {
		slog.Warn("Operation denied by policy", "conversation", conversationID, "summary", op.Summary)
		return &GateResult{Denied: true}, nil
	}
	if res.Risk.Action == risk.ActionAutoApprove {
		return &GateResult{Allowed: true, Risk: res.Risk}, nil
	}

	approvalID, ok, err := m.matchApproved(conversationID, res.Operation)
	if err != nil {
		return nil, fmt.Errorf("match approved requests: %w", err)
	}
	if ok {
		slog.Info("Operation runs under prior approval", "approval", approvalID, "conversation", conversationID)
		return &GateResult{Allowed: true, ApprovalID: approvalID, Risk: res.Risk}, nil
	}

	req, err := m.CreateApprovalRequest(ctx, op, conversationID, messageID)
	if err != nil {
		if errors.Is(err, ErrPolicyDenied) {
			return &GateResult{Denied: true}, nil
		}
		return nil, err
	}
	if req == nil {
		return &GateResult{Allowed: true, Risk: res.Risk}, nil
	}
	return &GateResult{Request: req, Risk: res.Risk}, nil
}

// matchApproved looks for an approved request whose redacted operation
// snapshot equals op's. An approval authorizes re-execution of the
// identical operation only until its timeout_at passes.
func (m *Manager) matchApproved(conversationID string, op risk.Operation) (string, bool, error) {
	rows, err := m.store.ApprovedApprovals(conversationID)
	if err != nil {
		return "", false, err
	}
	snap, err := json.Marshal(op)
	if err != nil {
		return "", false, err
	}
	now := m.now()
	for _, row := range rows {
		if now.After(row.TimeoutAt) {
			continue
		}
		if row.OperationJSON == string(snap) {
			return row.ApprovalID, true, nil
		}
	}
	return "", false, nil
}

// ResolveMessageDecision applies a conversational approve/reject to the
// conversation's pending request. Returns the decided row and the
// decision, or (nil, DecisionNone) when the message is ambiguous or no
// request is pending.
func (m *Manager) ResolveMessageDecision(conversationID, text string) (*store.ApprovalRow, Decision, error) {
	decision := DetectDecision(text)
	if decision == DecisionNone {
		return nil, DecisionNone, nil
	}
	rows, err := m.store.PendingApprovals(conversationID)
	if err != nil {
		return nil, DecisionNone, err
	}
	now := m.now()
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if now.After(row.TimeoutAt) {
			if _, err := m.sweepTimeout(row.ApprovalID); err != nil {
				return nil, DecisionNone, err
			}
			continue
		}
		var derr error
		if decision == DecisionApprove {
			derr = m.Approve(row.ApprovalID, "user", "message", text)
		} else {
			derr = m.Reject(row.ApprovalID, "user", "message", text)
		}
		if derr != nil {
			return nil, DecisionNone, derr
		}
		decided, err := m.store.GetApproval(row.ApprovalID)
		if err != nil {
			return nil, DecisionNone, err
		}
		return decided, decision, nil
	}
	return nil, DecisionNone, nil
}

// Approve moves a pending request to approved, stamping the actor and
// decision method. Returns store.ErrNotPending when the request already
// left the pending state (including lazy timeout).
func (m *Manager) Approve(approvalID, actor, method, message string) error {
	return m.decide(approvalID, "approved", actor, method, message)
}

// Reject moves a pending request to rejected.
func (m *Manager) Reject(approvalID, actor, method, message string) error {
	return m.decide(approvalID, "rejected", actor, method, message)
}

func (m *Manager) decide(approvalID, status, actor, method, message string) error {
	row, err := m.sweepTimeout(approvalID)
	if err != nil {
		return err
	}
	if row == nil {
		return fmt.Errorf("approval %s not found", approvalID)
	}
	if err := m.store.TransitionApproval(approvalID, status, actor, method, message, m.now()); err != nil {
		return err
	}
	slog.Info("Approval decided", "approval", approvalID, "status", status, "by", actor, "method", method)
	m.auditDecision(row, status, actor, method, message)
	return nil
}

// Status fetches a request, lazily expiring it first if its timeout has
// passed. Nothing polls timeouts: they are resolved here or when a newer
// request supersedes a pending one.
func (m *Manager) Status(approvalID string) (*store.ApprovalRow, error) {
	if _, err := m.sweepTimeout(approvalID); err != nil {
		return nil, err
	}
	return m.store.GetApproval(approvalID)
}

// sweepTimeout expires the request in place when it is pending past its
// timeout_at, and returns the row as read before any transition.
func (m *Manager) sweepTimeout(approvalID string) (*store.ApprovalRow, error) {
	row, err := m.store.GetApproval(approvalID)
	if err != nil || row == nil {
		return row, err
	}
	if row.Status == "pending" && m.now().After(row.TimeoutAt) {
		if err := m.store.TransitionApproval(approvalID, "timeout", "system", "timeout", "", m.now()); err != nil && !errors.Is(err, store.ErrNotPending) {
			return nil, err
		}
		slog.Info("Approval timed out", "approval", approvalID)
	}
	return row, nil
}

func (m *Manager) exceedsInline(content string) bool {
	if content == "" {
		return false
	}
	if m.cfg.MaxInlineChars > 0 && len(content) > m.cfg.MaxInlineChars {
		return true
	}
	if m.cfg.MaxInlineWords > 0 && len(strings.Fields(content)) > m.cfg.MaxInlineWords {
		return true
	}
	if m.cfg.MaxInlineLines > 0 && strings.Count(content, "\n")+1 > m.cfg.MaxInlineLines {
		return true
	}
	return false
}

func (m *Manager) toRow(req *Request) (*store.ApprovalRow, error) {
	opJSON, err := json.Marshal(req.Operation)
	if err != nil {
		return nil, fmt.Errorf("encode operation: %w", err)
	}
	dryJSON, err := json.Marshal(req.DryRun)
	if err != nil {
		return nil, fmt.Errorf("encode dry run: %w", err)
	}
	riskJSON, err := json.Marshal(req.Risk)
	if err != nil {
		return nil, fmt.Errorf("encode risk: %w", err)
	}
	return &store.ApprovalRow{
		ApprovalID:     req.ApprovalID,
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		OperationJSON:  string(opJSON),
		DryRunJSON:     string(dryJSON),
		RiskJSON:       string(riskJSON),
		Summary:        req.Summary,
		ArtifactID:     req.ArtifactID,
		CreatedAt:      req.CreatedAt,
		TimeoutAt:      req.TimeoutAt,
	}, nil
}

func (m *Manager) auditDecision(row *store.ApprovalRow, status, actor, method, message string) {
	record := map[string]any{
		"event":       "approval_decision",
		"approval_id": row.ApprovalID,
		"status":      status,
		"decided_by":  actor,
		"method":      method,
		"message":     message,
	}
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := m.store.InsertAuditRecord(&store.AuditRow{
		AuditID:        uuid.NewString(),
		CorrelationID:  row.ApprovalID,
		ConversationID: row.ConversationID,
		RecordJSON:     string(recordJSON),
		CreatedAt:      m.now(),
	}); err != nil {
		slog.Warn("Approval audit write failed", "approval", row.ApprovalID, "error", err)
	}
}
