package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tickwatch/tickwatch"
	"github.com/tickwatch/tickwatch/config"
	"github.com/tickwatch/tickwatch/internal/driver/httpdriver"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for CLI use.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// serveCmd starts the tickwatch server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the watcher server",
	Long: `Start the tickwatch server.

The server will:
  - Load configuration from the specified YAML file
  - Start sampling all configured tickers
  - Serve the REST/SSE/WebSocket API on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  tickwatch serve -c config.yaml
  tickwatch serve --config /etc/tickwatch/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	tickerCount := len(cfg.Tickers)
	for _, wl := range cfg.Watchlists {
		tickerCount += len(wl.Symbols)
	}

	logger.Info("config loaded",
		"mode", cfg.Mode,
		"tickers", tickerCount,
		"watchlists", len(cfg.Watchlists),
	)
	logger.Info("starting server",
		"port", cfg.Port,
		"sample_interval", cfg.SampleInterval.Duration().String(),
		"batch_window", cfg.BatchWindow.Duration().String(),
	)

	// convert config to SDK options
	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}

	opts = append(opts, tickwatch.WithLogger(logger))
	if cfg.Mode == config.ModeReal {
		opts = append(opts, tickwatch.WithDriver(httpdriver.New(cfg.RequestTimeout.Duration())))
	}

	w, err := tickwatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()

	// wait for server to finish
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
