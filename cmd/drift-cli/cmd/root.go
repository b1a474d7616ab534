package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "drift-cli",
	Short: "Drift CLI tool",
	Long: `Drift CLI is a command-line companion for the Drift ephemeral chat
server.

Available commands:
  topics    Inspect and validate room channel names
  token     Mint identity tokens for local development

Use "drift-cli [command] --help" for more information about a specific command.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
