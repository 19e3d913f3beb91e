// Package main is the entry point for the droidclaw CLI.
package main

import (
	"os"

	"github.com/DroidClaw/DroidClaw/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
