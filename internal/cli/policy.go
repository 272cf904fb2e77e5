package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ToolGate/ToolGate/internal/policy"
)

var policyCheckOp string

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and evaluate security policies",
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the active policy rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-8s %-10s %-6s %-30s %s\n", "TYPE", "CATEGORY", "PRIO", "PATTERN", "ACTION")
		for _, p := range a.policies.Policies() {
			action := color.GreenString(string(p.Action))
			if p.Action == policy.ActionDeny {
				action = color.RedString(string(p.Action))
			}
			fmt.Fprintf(w, "%-8s %-10s %-6d %-30s %s\n", p.Type, p.Category, p.Priority, p.Pattern, action)
		}
		return nil
	},
}

var policyCheckCmd = &cobra.Command{
	Use:   "check <tool|command|path|domain> <subject>",
	Short: "Evaluate one subject against the active policies",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var decision policy.Decision
		switch args[0] {
		case "tool":
			decision = a.policies.IsToolAllowed(args[1])
		case "command":
			decision = a.policies.IsCommandAllowed(args[1])
		case "path":
			decision = a.policies.IsPathAllowed(args[1], policyCheckOp)
		case "domain":
			decision = a.policies.IsDomainAllowed(args[1])
		default:
			return fmt.Errorf("unknown policy type %q (want tool, command, path, or domain)", args[0])
		}

		w := cmd.OutOrStdout()
		if decision.Allowed {
			fmt.Fprintln(w, color.GreenString("ALLOWED"))
		} else {
			fmt.Fprintln(w, color.RedString("DENIED"))
		}
		fmt.Fprintf(w, "Reason:      %s\n", decision.Reason)
		fmt.Fprintf(w, "Priority:    %d\n", decision.Priority)
		fmt.Fprintf(w, "Risk weight: %d\n", decision.RiskWeight)
		if decision.MatchedRule != nil {
			fmt.Fprintf(w, "Rule:        %s %q\n", decision.MatchedRule.Action, decision.MatchedRule.Pattern)
		} else {
			fmt.Fprintln(w, "Rule:        (no match, default deny)")
		}
		return nil
	},
}

func init() {
	policyCheckCmd.Flags().StringVar(&policyCheckOp, "op", "", "File operation category for path checks (read, write, delete)")
	policyCmd.AddCommand(policyListCmd)
	policyCmd.AddCommand(policyCheckCmd)
	rootCmd.AddCommand(policyCmd)
}
