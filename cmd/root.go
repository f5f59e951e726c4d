// Package cmd implements forgectl, the command-line entrypoint that drives
// the Orchestrator directly — the smallest host capable of exercising the
// full agent core end-to-end outside of tests.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/forgekit/agentcore/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "forgectl",
	Short: "forgectl — autonomous coding agent core",
	Long:  "forgectl drives an LLM through a bounded agent loop against local tools: file edits, shell, search, and MCP servers, with self-correction, fallback retry, and idempotency/loop guards.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: agentcore.json5 or $AGENTCORE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(metricsCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("forgectl %s\n", Version)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("AGENTCORE_CONFIG"); v != "" {
		return v
	}
	return "agentcore.json5"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
