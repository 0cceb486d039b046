package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/slackpulse"
	"github.com/jpalmerr/slackpulse/config"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the poller and its HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the workspace and serve the stats API",
	Long: `Start polling a Slack workspace and serve its member stats.

The server will:
  - Load configuration from the specified YAML file
  - Resolve the default channel and the workspace profile
  - Poll the channel's member count, backing off on failures
  - Serve /api/stats, /api/sse, /api/channels/{name} and /healthz

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  slackpulse serve -c config.yaml
  slackpulse serve --config /etc/slackpulse/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(os.Stderr, logLevel)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded", "config", cfg)
	logger.Info("starting server",
		"port", cfg.Port,
		"poll_interval", cfg.PollInterval.Duration().String(),
	)

	wp, err := config.NewPoller(cfg, slackpulse.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// serve - blocks until context cancelled or initialization fails
	errChan := make(chan error, 1)
	go func() {
		errChan <- wp.Serve(ctx)
	}()

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
