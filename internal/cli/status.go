package cli

import (
	"fmt"
	"os"

	"github.com/ToolGate/ToolGate/internal/config"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ ToolGate Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 ToolGate Status")
		fmt.Printf("Version: %s\n", version)

		configPath, err := config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Println("Config:  ✓ Found (" + configPath + ")")
			} else {
				fmt.Println("Config:  ✗ Not found (defaults in effect)")
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Println("API Key: ? Unable to load config")
			return
		}
		if cfg.Providers.OpenAI.APIKey != "" || cfg.Providers.Anthropic.APIKey != "" || cfg.Providers.Custom.APIBase != "" {
			fmt.Println("API Key: ✓ Found")
		} else {
			fmt.Println("API Key: ✗ Not found")
		}
		if cfg.Audit.Enabled {
			fmt.Println("Audit:   ✓ Enabled")
		} else {
			fmt.Println("Audit:   ✗ Disabled")
		}
		if cfg.Stream.Enabled {
			fmt.Println("Kafka:   ✓ Enabled (" + cfg.Stream.Brokers + ")")
		} else {
			fmt.Println("Kafka:   ✗ Disabled")
		}
		if cfg.Notify.Slack.Enabled {
			fmt.Println("Slack:   ✓ Enabled")
		} else {
			fmt.Println("Slack:   ✗ Disabled")
		}
		fmt.Println("Status:  Ready")
	},
}
