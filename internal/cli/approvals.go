package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ToolGate/ToolGate/internal/store"
)

var approvalsActor string

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Inspect and decide pending approval requests",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent approval requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rows, err := a.store.ListApprovals(20)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No approval requests.")
			return nil
		}
		for _, row := range rows {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-9s  %s  %s\n",
				row.ApprovalID, colorStatus(row.Status),
				row.CreatedAt.Format("2006-01-02 15:04"), row.Summary)
		}
		return nil
	},
}

var approvalsShowCmd = &cobra.Command{
	Use:   "show <approval-id>",
	Short: "Show one approval request in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		row, err := a.approvals.Status(args[0])
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("approval %s not found", args[0])
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "ID:           %s\n", row.ApprovalID)
		fmt.Fprintf(w, "Status:       %s\n", colorStatus(row.Status))
		fmt.Fprintf(w, "Conversation: %s\n", row.ConversationID)
		fmt.Fprintf(w, "Created:      %s\n", row.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "Times out:    %s\n", row.TimeoutAt.Format("2006-01-02 15:04:05"))
		if row.Summary != "" {
			fmt.Fprintf(w, "Summary:      %s\n", row.Summary)
		}
		if row.ArtifactID != "" {
			content, err := a.store.GetArtifact(row.ArtifactID)
			if err == nil {
				fmt.Fprintf(w, "Content:\n%s\n", content)
			}
		}
		fmt.Fprintf(w, "Risk:         %s\n", row.RiskJSON)
		fmt.Fprintf(w, "Dry run:      %s\n", row.DryRunJSON)
		if row.DecidedBy != "" {
			fmt.Fprintf(w, "Decided by:   %s (%s) %s\n", row.DecidedBy, row.DecisionMethod, row.DecisionMessage)
		}
		return nil
	},
}

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve <approval-id> [message]",
	Short: "Approve a pending request",
	Args:  cobra.MinimumNArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return decide(cmd, args, true) },
}

var approvalsRejectCmd = &cobra.Command{
	Use:   "reject <approval-id> [message]",
	Short: "Reject a pending request",
	Args:  cobra.MinimumNArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return decide(cmd, args, false) },
}

func decide(cmd *cobra.Command, args []string, approve bool) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	message := ""
	if len(args) > 1 {
		message = args[1]
	}
	if approve {
		err = a.approvals.Approve(args[0], approvalsActor, "cli", message)
	} else {
		err = a.approvals.Reject(args[0], approvalsActor, "cli", message)
	}
	if errors.Is(err, store.ErrNotPending) {
		return fmt.Errorf("approval %s is no longer pending", args[0])
	}
	if err != nil {
		return err
	}
	if approve {
		fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("Approved %s", args[0]))
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), color.YellowString("Rejected %s", args[0]))
	}
	return nil
}

func colorStatus(status string) string {
	switch status {
	case "pending":
		return color.YellowString(status)
	case "approved":
		return color.GreenString(status)
	case "rejected":
		return color.RedString(status)
	default:
		return color.HiBlackString(status)
	}
}

func init() {
	approvalsCmd.PersistentFlags().StringVar(&approvalsActor, "as", "cli-user", "Actor recorded on the decision")
	approvalsCmd.AddCommand(approvalsListCmd)
	approvalsCmd.AddCommand(approvalsShowCmd)
	approvalsCmd.AddCommand(approvalsApproveCmd)
	approvalsCmd.AddCommand(approvalsRejectCmd)
	rootCmd.AddCommand(approvalsCmd)
}
