package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/DroidClaw/DroidClaw/internal/config"
	"github.com/DroidClaw/DroidClaw/internal/timeline"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ DroidClaw Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and recent tasks",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 DroidClaw Status")
		fmt.Printf("Version: %s\n", version)

		configPath, _ := config.ConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			fmt.Println("Config:  ✓ Found (" + configPath + ")")
		} else {
			fmt.Println("Config:  ✗ Not found (defaults in effect)")
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Println("Config:  ? Unable to load:", err)
			return
		}
		if cfg.Provider.APIKey != "" {
			fmt.Println("API Key: ✓ Found")
		} else {
			fmt.Println("API Key: ✗ Not found")
		}
		fmt.Printf("Model:   %s\n", cfg.Model.Name)
		if cfg.Device.Serial != "" {
			fmt.Printf("Device:  %s\n", cfg.Device.Serial)
		} else {
			fmt.Println("Device:  default (first adb device)")
		}
		if cfg.Trace.Enabled {
			fmt.Printf("Traces:  ✓ Kafka %v -> %s\n", cfg.Trace.Brokers, cfg.Trace.Topic)
		} else {
			fmt.Println("Traces:  ✗ Disabled")
		}

		printRecentTasks(config.ExpandPath(cfg.Paths.TimelineDB))
	},
}

func printRecentTasks(dbPath string) {
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Println("\nNo tasks recorded yet.")
		return
	}
	audit, err := timeline.NewService(dbPath)
	if err != nil {
		fmt.Println("\nTimeline: ? Unable to open:", err)
		return
	}
	defer audit.Close()

	tasks, err := audit.RecentTasks(5)
	if err != nil || len(tasks) == 0 {
		fmt.Println("\nNo tasks recorded yet.")
		return
	}
	fmt.Println("\nRecent tasks:")
	for _, t := range tasks {
		mark := color.RedString("✗")
		if t.Success {
			mark = color.GreenString("✓")
		}
		fmt.Printf("  %s [%s] %s (%d calls)\n", mark, t.Strategy, truncateGoal(t.Goal), t.ToolCalls)
	}
}

func truncateGoal(goal string) string {
	if len(goal) <= 60 {
		return goal
	}
	return goal[:60] + "..."
}
