package config

import (
	"github.com/jpalmerr/slackpulse"
)

// BuildOptions converts parsed configuration into SDK options.
//
// The returned options do not include a logger, clock or listeners; callers
// append their own.
func BuildOptions(cfg *Config) []slackpulse.Option {
	opts := []slackpulse.Option{
		slackpulse.WithPollInterval(cfg.PollInterval.Duration()),
		slackpulse.WithMaxBackoff(cfg.MaxBackoff.Duration()),
		slackpulse.WithBackoffReset(cfg.ResetBackoffEnabled()),
		slackpulse.WithDefaultChannel(cfg.DefaultChannel),
		slackpulse.WithPort(cfg.Port),
	}

	if cfg.RequestTimeout > 0 {
		opts = append(opts, slackpulse.WithRequestTimeout(cfg.RequestTimeout.Duration()))
	}

	if cfg.APIURL != "" {
		opts = append(opts, slackpulse.WithAPIURL(cfg.APIURL))
	}

	if cfg.Presence.Enabled {
		opts = append(opts, slackpulse.WithPresence(cfg.Presence.MaxMembers, cfg.Presence.Concurrency))
	}

	return opts
}

// NewPoller creates a [slackpulse.WorkspacePoller] from a parsed Config.
// extra options are applied after the configured ones.
func NewPoller(cfg *Config, extra ...slackpulse.Option) (*slackpulse.WorkspacePoller, error) {
	return slackpulse.New(cfg.Workspace, cfg.Token, append(BuildOptions(cfg), extra...)...)
}
