// Package cli implements the toolgate command tree.
package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/ToolGate/ToolGate/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"  _____           _  ____       _\n" +
		" |_   _|__   ___ | |/ ___| __ _| |_ ___\n" +
		"   | |/ _ \\ / _ \\| | |  _ / _` | __/ _ \\\n" +
		"   | | (_) | (_) | | |_| | (_| | ||  __/\n" +
		"   |_|\\___/ \\___/|_|\\____|\\__,_|\\__\\___|\n"
)

var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "ToolGate - risk-gated tool orchestration",
	Long:  color.CyanString(logo) + "\nA tool-aware LLM pipeline with policy checks, risk scoring, and human approval gates.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
}
