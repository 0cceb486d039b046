// Package config provides YAML configuration parsing for slackpulse.
//
// This package enables running slackpulse as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	workspace: myteam
//	token: ${SLACK_TOKEN}
//	poll_interval: 5s
//	max_backoff: 30m
//	port: 8080
//
//	presence:
//	  enabled: true
//	  max_members: 100
//	  concurrency: 5
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

const (
	// minPollInterval keeps a misconfigured poller from hammering the Slack API.
	minPollInterval = 1 * time.Second

	defaultPort           = 8080
	defaultPollInterval   = 5 * time.Second
	defaultMaxBackoff     = 30 * time.Minute
	defaultRequestTimeout = 10 * time.Second
	defaultChannel        = "general"
	defaultMaxMembers     = 100
	defaultConcurrency    = 5
)

// ErrInvalidConfig is returned for every validation failure.
var ErrInvalidConfig = goerr.New("invalid configuration")

// Config is the root configuration structure for slackpulse.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Workspace is the Slack subdomain, "myteam" for myteam.slack.com.
	// Supports ${VAR} and ${VAR:-default}.
	Workspace string `yaml:"workspace"`

	// Token is the Slack API token. Supports ${VAR} and ${VAR:-default}.
	Token string `yaml:"token" masq:"secret"`

	// PollInterval is the time between successful fetches. Defaults to 5s.
	PollInterval Duration `yaml:"poll_interval"`

	// MaxBackoff caps the retry delay. Defaults to 30m.
	MaxBackoff Duration `yaml:"max_backoff"`

	// ResetBackoff restarts the retry sequence after a success.
	// Defaults to true.
	ResetBackoff *bool `yaml:"reset_backoff"`

	// RequestTimeout bounds each Slack API call. Defaults to 10s.
	RequestTimeout Duration `yaml:"request_timeout"`

	// DefaultChannel is the channel whose members are counted.
	// Defaults to "general".
	DefaultChannel string `yaml:"default_channel"`

	// APIURL overrides the Web API base URL.
	// Defaults to https://<workspace>.slack.com/api/.
	APIURL string `yaml:"api_url"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// Presence configures real active member counts.
	Presence PresenceConfig `yaml:"presence"`
}

// PresenceConfig configures presence-based active member counting.
type PresenceConfig struct {
	// Enabled turns presence counting on. Off by default.
	Enabled bool `yaml:"enabled"`

	// MaxMembers is the largest channel whose members are queried
	// individually. Defaults to 100.
	MaxMembers int `yaml:"max_members"`

	// Concurrency is the number of presence requests in flight. Defaults to 5.
	Concurrency int `yaml:"concurrency"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return goerr.Wrap(err, "invalid duration", goerr.V("value", s))
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ResetBackoffEnabled reports the effective reset_backoff setting.
func (c *Config) ResetBackoffEnabled() bool {
	return c.ResetBackoff == nil || *c.ResetBackoff
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part, present when a default was given
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = goerr.New(fmt.Sprintf("environment variable %q is not set", varName))
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in workspace, token and api_url.
// Defaults are applied before validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse YAML")
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.PollInterval == 0 {
		c.PollInterval = Duration(defaultPollInterval)
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = Duration(defaultMaxBackoff)
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = Duration(defaultRequestTimeout)
	}
	if c.DefaultChannel == "" {
		c.DefaultChannel = defaultChannel
	}
	if c.Presence.MaxMembers == 0 {
		c.Presence.MaxMembers = defaultMaxMembers
	}
	if c.Presence.Concurrency == 0 {
		c.Presence.Concurrency = defaultConcurrency
	}
}

func invalid(msg string, opts ...goerr.Option) error {
	return goerr.Wrap(ErrInvalidConfig, msg, opts...)
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	for _, field := range []struct {
		name  string
		value *string
	}{
		{"workspace", &c.Workspace},
		{"token", &c.Token},
		{"api_url", &c.APIURL},
	} {
		expanded, err := expandEnvVars(*field.value)
		if err != nil {
			return goerr.Wrap(err, fmt.Sprintf("%s: environment expansion failed", field.name))
		}
		*field.value = expanded
	}

	if c.Workspace == "" {
		return invalid("workspace is required")
	}
	if c.Token == "" {
		return invalid("token is required")
	}

	if c.PollInterval.Duration() < minPollInterval {
		return invalid(fmt.Sprintf("poll_interval must be at least %s", minPollInterval),
			goerr.V("poll_interval", c.PollInterval.Duration().String()))
	}
	if c.MaxBackoff.Duration() < c.PollInterval.Duration() {
		return invalid("max_backoff must not be shorter than poll_interval",
			goerr.V("max_backoff", c.MaxBackoff.Duration().String()))
	}
	if c.RequestTimeout.Duration() < 0 {
		return invalid("request_timeout cannot be negative",
			goerr.V("request_timeout", c.RequestTimeout.Duration().String()))
	}

	if c.Port < 1 || c.Port > 65535 {
		return invalid("port must be between 1 and 65535", goerr.V("port", c.Port))
	}

	if c.APIURL != "" {
		parsed, err := url.Parse(c.APIURL)
		if err != nil {
			return invalid("api_url is not a valid URL", goerr.V("api_url", c.APIURL))
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return invalid("api_url scheme must be http or https", goerr.V("api_url", c.APIURL))
		}
	}

	if c.Presence.MaxMembers < 0 {
		return invalid("presence.max_members cannot be negative", goerr.V("max_members", c.Presence.MaxMembers))
	}
	if c.Presence.Concurrency < 0 {
		return invalid("presence.concurrency cannot be negative", goerr.V("concurrency", c.Presence.Concurrency))
	}

	return nil
}
