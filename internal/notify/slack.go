// Package notify pushes approval requests to external channels.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/ToolGate/ToolGate/internal/approval"
	"github.com/ToolGate/ToolGate/internal/config"
)

// SlackNotifier posts new approval requests to a Slack channel so a human
// can decide without watching the CLI.
type SlackNotifier struct {
	api     *slack.Client
	channel string
}

// NewSlackNotifier creates a notifier from config. Returns nil when Slack
// notifications are disabled or not configured.
func NewSlackNotifier(cfg config.SlackConfig) *SlackNotifier {
	if !cfg.Enabled || cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &SlackNotifier{api: slack.New(cfg.Token), channel: cfg.Channel}
}

// NotifyApproval posts one pending request.
func (n *SlackNotifier) NotifyApproval(ctx context.Context, req *approval.Request) error {
	_, _, err := n.api.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(renderRequest(req), false))
	if err != nil {
		return fmt.Errorf("post approval notification: %w", err)
	}
	return nil
}

func renderRequest(req *approval.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":lock: Approval needed (%s, score %d)\n", req.Risk.Level, req.Risk.Score)
	if req.Summary != "" {
		fmt.Fprintf(&b, "> %s\n", req.Summary)
	}
	for _, factor := range req.Risk.Factors {
		fmt.Fprintf(&b, "• %s\n", factor)
	}
	fmt.Fprintf(&b, "Decide with: `toolgate approvals approve %s` or `toolgate approvals reject %s` (expires %s)",
		req.ApprovalID, req.ApprovalID, req.TimeoutAt.Format("15:04 MST"))
	return b.String()
}
