// Package main is the entry point for the tickwatch CLI.
//
// Tickwatch can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	tickwatch serve -c config.yaml    # Start the watcher
//	tickwatch validate -c config.yaml # Validate configuration
//	tickwatch version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "tickwatch",
	Short: "A real-time ticker price watcher",
	Long: `Tickwatch samples ticker prices from quote pages at a configurable
interval and streams batched updates to subscribers over SSE and
WebSocket.

Quick start:
  1. Create a config file (tickwatch.yaml)
  2. Run: tickwatch serve -c tickwatch.yaml
  3. Stream updates: curl http://localhost:8080/api/stream

Example config:
  port: 8080
  sample_interval: 1s
  url_template: "https://quotes.example.com/q/{ticker}"
  tickers: [BTCUSD, ETHUSD]`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this tickwatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tickwatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
