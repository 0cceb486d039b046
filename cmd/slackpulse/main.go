// Package main is the entry point for the slackpulse CLI.
//
// slackpulse can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	slackpulse serve -c config.yaml    # Poll and serve the stats API
//	slackpulse watch -c config.yaml    # Print events as JSON lines
//	slackpulse validate -c config.yaml # Validate configuration
//	slackpulse version                 # Show version info
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/m-mizutani/masq"
	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// logLevel is bound to the persistent --log-level flag.
var logLevel string

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "slackpulse",
	Short: "Live member stats for a Slack workspace",
	Long: `slackpulse polls a Slack workspace for the member count of its
default channel and exposes the latest numbers over HTTP.

Quick start:
  1. Create a config file (slackpulse.yaml)
  2. Run: slackpulse serve -c slackpulse.yaml
  3. curl http://localhost:8080/api/stats

Example config:
  workspace: myteam
  token: ${SLACK_TOKEN}
  poll_interval: 5s
  port: 8080`,
	SilenceUsage: true,
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

// newLogger creates a JSON logger for CLI use. Secrets are masked before
// they reach the writer: fields tagged `masq:"secret"` and any field named
// Token.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: masq.New(
			masq.WithTag("secret"),
			masq.WithFieldName("Token"),
		),
	})), nil
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this slackpulse binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "slackpulse %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
