package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ToolGate/ToolGate/internal/pipeline"
)

var (
	runSession string
	runConv    string
	runJSON    bool
)

var runCmd = &cobra.Command{
	Use:   "run [message]",
	Short: "Run one message through the tool-aware pipeline",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.Join(args, " ")

		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		conversationID := runConv
		if conversationID == "" {
			conversationID = "cli"
		}

		var failed bool
		var finalMessage string
		for ev := range a.pipeline.Run(context.Background(), runSession, conversationID, message) {
			if ev.Type == pipeline.EventFinalMessage {
				finalMessage = ev.Message
			}
			if runJSON {
				line, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(line))
				continue
			}
			failed = renderEvent(cmd, ev) || failed
		}
		if runSession != "" && !failed {
			a.store.AppendMessage(runSession, "user", message)
			a.store.AppendMessage(runSession, "assistant", finalMessage)
		}
		if failed {
			return fmt.Errorf("pipeline run failed")
		}
		return nil
	},
}

// renderEvent prints one event for humans. Returns true for error events.
func renderEvent(cmd *cobra.Command, ev pipeline.Event) bool {
	w := cmd.OutOrStdout()
	switch ev.Type {
	case pipeline.EventPipelineStart:
		fmt.Fprintln(w, color.HiBlackString("▸ starting (%s)", ev.CorrelationID))
	case pipeline.EventRouterDecision:
		if ev.Decision.NeedsTools {
			fmt.Fprintln(w, color.CyanString("▸ tools needed: %s", ev.Decision.HighLevelGoal))
		} else {
			fmt.Fprintln(w, color.CyanString("▸ answering directly"))
		}
	case pipeline.EventToolPlan:
		for _, step := range ev.Plan.PlanSteps {
			fmt.Fprintln(w, color.HiBlackString("  plan: %s", step.ToolID))
		}
	case pipeline.EventToolResult:
		if ev.Result.Success {
			fmt.Fprintln(w, color.GreenString("  ✓ %s (%dms)", ev.Result.ToolID, ev.Result.ElapsedMs))
		} else {
			fmt.Fprintln(w, color.RedString("  ✗ %s: %s", ev.Result.ToolID, ev.Result.Error))
		}
	case pipeline.EventApprovalRequired:
		req := ev.Approval
		fmt.Fprintln(w, color.YellowString("  ⏸ approval required: %s (risk %d, %s)",
			req.Summary, req.Risk.Score, req.Risk.Level))
		fmt.Fprintln(w, color.YellowString("    approve with: toolgate approvals approve %s", req.ApprovalID))
	case pipeline.EventSummarizing:
		fmt.Fprintln(w, color.HiBlackString("▸ summarizing"))
	case pipeline.EventComposing:
		fmt.Fprintln(w, color.HiBlackString("▸ composing"))
	case pipeline.EventFinalMessage:
		fmt.Fprintln(w)
		fmt.Fprintln(w, ev.Message)
		fmt.Fprintln(w, color.HiBlackString("(%s/%s)", ev.Provider, ev.Model))
	case pipeline.EventError:
		fmt.Fprintln(w, color.RedString("error: %s", ev.Error))
		return true
	}
	return false
}

func init() {
	runCmd.Flags().StringVar(&runSession, "session", "", "Session id for conversation continuity")
	runCmd.Flags().StringVar(&runConv, "conversation", "", "Conversation id for approval scoping")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Emit raw events as JSON lines")
	rootCmd.AddCommand(runCmd)
}
