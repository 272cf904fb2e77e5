package approval

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ToolGate/ToolGate/internal/config"
	"github.com/ToolGate/ToolGate/internal/dryrun"
	"github.com/ToolGate/ToolGate/internal/policy"
	"github.com/ToolGate/ToolGate/internal/risk"
	"github.com/ToolGate/ToolGate/internal/store"
)

func testManager(t *testing.T, policies []policy.Policy) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "toolgate.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg := policy.NewRegistry(policies, time.Minute)
	scorer := risk.NewScorer(reg)
	sim := dryrun.NewSimulator(reg, scorer)
	return NewManager(st, sim, config.DefaultConfig().Approval), st
}

func allowAllTools() []policy.Policy {
	return []policy.Policy{
		{Type: policy.TypeTool, Pattern: "*", Action: policy.ActionAllow, Priority: 100},
		{Type: policy.TypeCommand, Pattern: "*", Action: policy.ActionAllow, Priority: 100},
		{Type: policy.TypePath, Pattern: "*", Action: policy.ActionAllow, Priority: 100},
		{Type: policy.TypeDomain, Pattern: "*", Action: policy.ActionAllow, Priority: 100},
	}
}

func TestAutoApproveFastPath(t *testing.T) {
	m, _ := testManager(t, allowAllTools())
	req, err := m.CreateApprovalRequest(context.Background(), risk.Operation{
		Kind:   risk.KindToolCall,
		ToolID: "fs.read",
		Params: map[string]any{"path": "README.md"},
	}, "conv-1", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req != nil {
		t.Fatalf("low-risk tool call should not create a request, got %+v", req)
	}
}

func TestPolicyDeniedNeverCreatesRequest(t *testing.T) {
	policies := append(allowAllTools(), policy.Policy{
		Type: policy.TypeDomain, Pattern: "evil.example.com",
		Action: policy.ActionDeny, Priority: 1,
	})
	m, st := testManager(t, policies)
	_, err := m.CreateApprovalRequest(context.Background(), risk.Operation{
		Kind:   risk.KindNetwork,
		Domain: "evil.example.com",
		Method: "GET",
	}, "conv-1", "")
	if !errors.Is(err, ErrPolicyDenied) {
		t.Fatalf("expected ErrPolicyDenied, got %v", err)
	}
	rows, err := st.PendingApprovals("conv-1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("no request should be persisted, got %d", len(rows))
	}
}

func TestCreatePersistsPendingRequest(t *testing.T) {
	m, st := testManager(t, allowAllTools())
	req, err := m.CreateApprovalRequest(context.Background(), risk.Operation{
		Kind:    risk.KindCommand,
		Command: "rm -rf /tmp/scratch",
		Summary: "remove scratch directory",
	}, "conv-1", "msg-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req == nil {
		t.Fatal("high-risk command must create a request")
	}
	if req.Risk.Action == risk.ActionAutoApprove {
		t.Fatalf("unexpected auto_approve for rm -rf, score=%d", req.Risk.Score)
	}
	row, err := st.GetApproval(req.ApprovalID)
	if err != nil || row == nil {
		t.Fatalf("persisted row missing: %v", err)
	}
	if row.Status != "pending" {
		t.Fatalf("status = %s, want pending", row.Status)
	}
	if !row.TimeoutAt.After(row.CreatedAt) {
		t.Fatal("timeout_at must be after created_at")
	}
}

func TestSecondRequestSupersedesFirst(t *testing.T) {
	m, st := testManager(t, allowAllTools())
	op := risk.Operation{Kind: risk.KindCommand, Command: "sudo systemctl restart db"}

	first, err := m.CreateApprovalRequest(context.Background(), op, "conv-1", "")
	if err != nil || first == nil {
		t.Fatalf("first create: req=%v err=%v", first, err)
	}
	second, err := m.CreateApprovalRequest(context.Background(), op, "conv-1", "")
	if err != nil || second == nil {
		t.Fatalf("second create: req=%v err=%v", second, err)
	}

	pending, err := st.PendingApprovals("conv-1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ApprovalID != second.ApprovalID {
		t.Fatalf("exactly the newest request should be pending, got %d", len(pending))
	}
	row, _ := st.GetApproval(first.ApprovalID)
	if row.Status != "timeout" {
		t.Fatalf("first request status = %s, want timeout", row.Status)
	}
}

func TestOversizedContentBecomesArtifact(t *testing.T) {
	m, st := testManager(t, allowAllTools())
	big := strings.Repeat("line of generated output\n", 200)
	req, err := m.CreateApprovalRequest(context.Background(), risk.Operation{
		Kind:        risk.KindCommand,
		Command:     "sudo apt upgrade",
		Summary:     "upgrade packages",
		FullContent: big,
	}, "conv-1", "")
	if err != nil || req == nil {
		t.Fatalf("create: req=%v err=%v", req, err)
	}
	if req.ArtifactID == "" {
		t.Fatal("oversized content must be stored as an artifact")
	}
	content, err := st.GetArtifact(req.ArtifactID)
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	if content != big {
		t.Fatal("artifact content mismatch")
	}
}

func TestApproveAndRejectRequirePending(t *testing.T) {
	m, _ := testManager(t, allowAllTools())
	op := risk.Operation{Kind: risk.KindCommand, Command: "sudo reboot"}
	req, err := m.CreateApprovalRequest(context.Background(), op, "conv-1", "")
	if err != nil || req == nil {
		t.Fatalf("create: req=%v err=%v", req, err)
	}

	if err := m.Approve(req.ApprovalID, "alice", "cli", "looks fine"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	row, err := m.Status(req.ApprovalID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if row.Status != "approved" || row.DecidedBy != "alice" || row.DecisionMethod != "cli" {
		t.Fatalf("decision not stamped: %+v", row)
	}

	// Second decision on a settled request must fail.
	if err := m.Reject(req.ApprovalID, "bob", "cli", ""); !errors.Is(err, store.ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
}

func TestGateOperationAutoApprove(t *testing.T) {
	m, st := testManager(t, allowAllTools())
	verdict, err := m.GateOperation(context.Background(), risk.Operation{
		Kind:   risk.KindToolCall,
		ToolID: "fs.read",
		Params: map[string]any{"path": "README.md"},
	}, "conv-1", "")
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if !verdict.Allowed || verdict.ApprovalID != "" {
		t.Fatalf("low-risk tool call should pass straight through, got %+v", verdict)
	}
	rows, _ := st.ListApprovals(10)
	if len(rows) != 0 {
		t.Fatalf("auto-approved operation must not persist a request, got %d", len(rows))
	}
}

func TestGateOperationPolicyDenied(t *testing.T) {
	policies := append(allowAllTools(), policy.Policy{
		Type: policy.TypeDomain, Pattern: "evil.example.com",
		Action: policy.ActionDeny, Priority: 1,
	})
	m, st := testManager(t, policies)
	verdict, err := m.GateOperation(context.Background(), risk.Operation{
		Kind:   risk.KindNetwork,
		Domain: "evil.example.com",
		Method: "GET",
	}, "conv-1", "")
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if !verdict.Denied || verdict.Allowed {
		t.Fatalf("blocked domain must be denied, got %+v", verdict)
	}
	rows, _ := st.ListApprovals(10)
	if len(rows) != 0 {
		t.Fatalf("denied operation must not persist a request, got %d", len(rows))
	}
}

func TestGateOperationHonorsPriorApproval(t *testing.T) {
	m, st := testManager(t, allowAllTools())
	op := risk.Operation{
		Kind:    risk.KindCommand,
		ToolID:  "shell.exec",
		Params:  map[string]any{"command": "rm -rf /tmp/scratch"},
		Command: "rm -rf /tmp/scratch",
		Summary: "remove scratch directory",
	}

	verdict, err := m.GateOperation(context.Background(), op, "conv-1", "")
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if verdict.Allowed || verdict.Request == nil {
		t.Fatalf("risky command must wait for approval, got %+v", verdict)
	}

	if err := m.Approve(verdict.Request.ApprovalID, "alice", "cli", ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	verdict, err = m.GateOperation(context.Background(), op, "conv-1", "")
	if err != nil {
		t.Fatalf("gate after approve: %v", err)
	}
	if !verdict.Allowed || verdict.ApprovalID == "" {
		t.Fatalf("approved operation must be allowed, got %+v", verdict)
	}
	pending, _ := st.PendingApprovals("conv-1")
	if len(pending) != 0 {
		t.Fatalf("no new request should be created, got %d pending", len(pending))
	}

	// A different command is a different operation and gets its own request.
	other := op
	other.Params = map[string]any{"command": "rm -rf /var/lib/app"}
	other.Command = "rm -rf /var/lib/app"
	verdict, err = m.GateOperation(context.Background(), other, "conv-1", "")
	if err != nil {
		t.Fatalf("gate other: %v", err)
	}
	if verdict.Allowed {
		t.Fatal("a prior approval must not cover a different operation")
	}
}

func TestGateApprovalWindowCloses(t *testing.T) {
	m, _ := testManager(t, allowAllTools())
	base := time.Now()
	m.now = func() time.Time { return base }
	op := risk.Operation{Kind: risk.KindCommand, Command: "sudo systemctl restart db"}

	verdict, err := m.GateOperation(context.Background(), op, "conv-1", "")
	if err != nil || verdict.Request == nil {
		t.Fatalf("gate: verdict=%+v err=%v", verdict, err)
	}
	if err := m.Approve(verdict.Request.ApprovalID, "alice", "cli", ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	m.now = func() time.Time { return base.Add(31 * time.Minute) }
	verdict, err = m.GateOperation(context.Background(), op, "conv-1", "")
	if err != nil {
		t.Fatalf("gate after window: %v", err)
	}
	if verdict.Allowed {
		t.Fatal("an approval past its timeout must not authorize execution")
	}
	if verdict.Request == nil {
		t.Fatal("a fresh request should be created once the window closed")
	}
}

func TestResolveMessageDecisionApproves(t *testing.T) {
	m, _ := testManager(t, allowAllTools())
	req, err := m.CreateApprovalRequest(context.Background(), risk.Operation{
		Kind: risk.KindCommand, Command: "sudo reboot", Summary: "reboot host",
	}, "conv-1", "")
	if err != nil || req == nil {
		t.Fatalf("create: req=%v err=%v", req, err)
	}

	row, decision, err := m.ResolveMessageDecision("conv-1", "yes, go ahead")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision != DecisionApprove || row == nil {
		t.Fatalf("decision = %q row = %v", decision, row)
	}
	if row.Status != "approved" || row.DecisionMethod != "message" || row.DecidedBy != "user" {
		t.Fatalf("decision not stamped: %+v", row)
	}
}

func TestResolveMessageDecisionRejects(t *testing.T) {
	m, _ := testManager(t, allowAllTools())
	req, err := m.CreateApprovalRequest(context.Background(), risk.Operation{
		Kind: risk.KindCommand, Command: "sudo reboot", Summary: "reboot host",
	}, "conv-1", "")
	if err != nil || req == nil {
		t.Fatalf("create: req=%v err=%v", req, err)
	}

	row, decision, err := m.ResolveMessageDecision("conv-1", "don't do that")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision != DecisionReject || row == nil || row.Status != "rejected" {
		t.Fatalf("decision = %q row = %+v", decision, row)
	}
}

func TestResolveMessageDecisionIgnoresAmbiguity(t *testing.T) {
	m, st := testManager(t, allowAllTools())
	req, err := m.CreateApprovalRequest(context.Background(), risk.Operation{
		Kind: risk.KindCommand, Command: "sudo reboot", Summary: "reboot host",
	}, "conv-1", "")
	if err != nil || req == nil {
		t.Fatalf("create: req=%v err=%v", req, err)
	}

	row, decision, err := m.ResolveMessageDecision("conv-1", "what will that change?")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision != DecisionNone || row != nil {
		t.Fatalf("ambiguous message must not decide, got %q %v", decision, row)
	}
	current, _ := st.GetApproval(req.ApprovalID)
	if current.Status != "pending" {
		t.Fatalf("request should stay pending, got %s", current.Status)
	}
}

func TestResolveMessageDecisionWithoutPendingRequest(t *testing.T) {
	m, _ := testManager(t, allowAllTools())
	row, decision, err := m.ResolveMessageDecision("conv-1", "yes")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision != DecisionNone || row != nil {
		t.Fatalf("nothing to decide, got %q %v", decision, row)
	}
}

func TestLazyTimeoutOnStatusCheck(t *testing.T) {
	m, _ := testManager(t, allowAllTools())
	base := time.Now()
	m.now = func() time.Time { return base }

	req, err := m.CreateApprovalRequest(context.Background(), risk.Operation{
		Kind: risk.KindCommand, Command: "sudo rm -rf /var/cache/app",
	}, "conv-1", "")
	if err != nil || req == nil {
		t.Fatalf("create: req=%v err=%v", req, err)
	}

	m.now = func() time.Time { return base.Add(31 * time.Minute) }
	row, err := m.Status(req.ApprovalID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if row.Status != "timeout" {
		t.Fatalf("stale request should read as timeout, got %s", row.Status)
	}
	if err := m.Approve(req.ApprovalID, "alice", "cli", ""); !errors.Is(err, store.ErrNotPending) {
		t.Fatalf("approving a timed-out request should fail, got %v", err)
	}
}
