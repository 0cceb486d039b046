package main

import (
	"fmt"

	"github.com/jpalmerr/slackpulse/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without contacting Slack.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a slackpulse configuration file without contacting Slack.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.
The token is never printed.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  slackpulse validate -c config.yaml
  slackpulse validate --config /etc/slackpulse/config.yaml`,
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

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = fmt.Sprintf("https://%s.slack.com/api/", cfg.Workspace)
	}

	presence := "off"
	if cfg.Presence.Enabled {
		presence = fmt.Sprintf("on (max %d members, %d concurrent)",
			cfg.Presence.MaxMembers, cfg.Presence.Concurrency)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Workspace:       %s\n", cfg.Workspace)
	fmt.Fprintf(out, "  API URL:         %s\n", apiURL)
	fmt.Fprintf(out, "  Default channel: #%s\n", cfg.DefaultChannel)
	fmt.Fprintf(out, "  Port:            %d\n", cfg.Port)
	fmt.Fprintf(out, "  Poll interval:   %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  Max backoff:     %s (reset on success: %t)\n",
		cfg.MaxBackoff.Duration(), cfg.ResetBackoffEnabled())
	fmt.Fprintf(out, "  Presence:        %s\n", presence)

	return nil
}
