package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tickwatch/tickwatch/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a tickwatch configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  tickwatch validate -c config.yaml
  tickwatch validate --config /etc/tickwatch/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Count total tickers (direct + from watchlists)
	directTickers := len(cfg.Tickers)
	watchlistTickers := 0
	for _, wl := range cfg.Watchlists {
		watchlistTickers += len(wl.Symbols)
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Port:            %d\n", cfg.Port)
	fmt.Printf("  Mode:            %s\n", cfg.Mode)
	fmt.Printf("  Sample interval: %s\n", cfg.SampleInterval.Duration())
	fmt.Printf("  Tickers:         %d direct + %d from watchlists = %d total\n",
		directTickers, watchlistTickers, directTickers+watchlistTickers)

	return nil
}
