// Package cli implements the droidclaw command line interface.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/DroidClaw/DroidClaw/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"  ____            _     _  ____ _\n" +
		" |  _ \\ _ __ ___ (_) __| |/ ___| | __ ___      __\n" +
		" | | | | '__/ _ \\| |/ _` | |   | |/ _` \\ \\ /\\ / /\n" +
		" | |_| | | | (_) | | (_| | |___| | (_| |\\ V  V /\n" +
		" |____/|_|  \\___/|_|\\__,_|\\____|_|\\__,_| \\_/\\_/\n"
)

var rootCmd = &cobra.Command{
	Use:   "droidclaw",
	Short: "DroidClaw - LLM agent for your Android device",
	Long:  color.CyanString(logo) + "\nAn agent that drives an Android device through adb, tools, and an LLM.",
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
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pairCmd)
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}
