package slackpulse

import (
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/coder/quartz"
)

// pollerConfig holds mutable state during WorkspacePoller construction.
type pollerConfig struct {
	pollInterval   time.Duration
	maxBackoff     time.Duration
	resetBackoff   bool
	requestTimeout time.Duration
	defaultChannel string
	apiURL         string
	port           int
	logger         *slog.Logger
	clock          quartz.Clock
	listeners      []listenerRegistration
	counter        ActiveCounter
	presence       *presenceSettings
}

type listenerRegistration struct {
	listener Listener
	types    []EventType
}

type presenceSettings struct {
	maxMembers  int
	concurrency int
}

// Option is a function that configures a [WorkspacePoller] during construction.
//
// Option implements the functional options pattern. Options return an error
// if validation fails.
type Option func(*pollerConfig) error

// WithPollInterval sets the base polling interval.
//
// A successful fetch always schedules the next one after exactly this
// interval. Failures back off from twice this value. Defaults to 5 seconds.
//
// Returns an error if the duration is zero or negative.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *pollerConfig) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.pollInterval = d
		return nil
	}
}

// WithMaxBackoff caps the retry delay after consecutive failures.
//
// Defaults to 30 minutes. A value below the poll interval is raised to the
// poll interval.
//
// Returns an error if the duration is zero or negative.
func WithMaxBackoff(d time.Duration) Option {
	return func(cfg *pollerConfig) error {
		if d <= 0 {
			return errors.New("max backoff must be positive")
		}
		cfg.maxBackoff = d
		return nil
	}
}

// WithBackoffReset controls whether a successful fetch resets the retry delay.
//
// Enabled by default: a failure after a success starts again at twice the
// poll interval. When disabled, every failure doubles the delay reached by
// the previous failure, even if successful fetches happened in between.
func WithBackoffReset(enabled bool) Option {
	return func(cfg *pollerConfig) error {
		cfg.resetBackoff = enabled
		return nil
	}
}

// WithRequestTimeout bounds each Slack API call. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *pollerConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithDefaultChannel sets the name of the channel whose members are counted.
// Defaults to "general".
//
// Returns an error if the name is empty.
func WithDefaultChannel(name string) Option {
	return func(cfg *pollerConfig) error {
		if name == "" {
			return errors.New("default channel name cannot be empty")
		}
		cfg.defaultChannel = name
		return nil
	}
}

// WithAPIURL overrides the Slack Web API base URL.
//
// By default the poller talks to https://<host>.slack.com/api/. Use this to
// point at a proxy or a fake API in tests.
//
// Returns an error if the URL is not absolute http or https.
func WithAPIURL(u string) Option {
	return func(cfg *pollerConfig) error {
		parsed, err := url.Parse(u)
		if err != nil {
			return errors.New("api url is invalid")
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return errors.New("api url scheme must be http or https")
		}
		cfg.apiURL = u
		return nil
	}
}

// WithPort sets the HTTP port used by [WorkspacePoller.Serve]. Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *pollerConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *pollerConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithClock sets the clock used for scheduling and event timestamps.
// Tests pass a quartz mock clock; production uses the real clock.
//
// Returns an error if the clock is nil.
func WithClock(clock quartz.Clock) Option {
	return func(cfg *pollerConfig) error {
		if clock == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = clock
		return nil
	}
}

// WithListener registers a [Listener] at construction time.
//
// With no types the listener receives every event. Equivalent to calling
// [WorkspacePoller.Subscribe] before [WorkspacePoller.Start], except the
// subscription cannot be removed.
//
// Nil listeners are silently ignored.
func WithListener(l Listener, types ...EventType) Option {
	return func(cfg *pollerConfig) error {
		if l == nil {
			return nil
		}
		cfg.listeners = append(cfg.listeners, listenerRegistration{listener: l, types: types})
		return nil
	}
}

// WithActiveCounter replaces the active member computation.
//
// Returns an error if the counter is nil.
func WithActiveCounter(c ActiveCounter) Option {
	return func(cfg *pollerConfig) error {
		if c == nil {
			return errors.New("active counter cannot be nil")
		}
		cfg.counter = c
		return nil
	}
}

// WithPresence counts active members from real presence data.
//
// For channels with at most maxMembers members, each member's presence is
// queried with up to concurrency requests in flight. Larger channels report
// [ActivePlaceholder]. Zero values use 100 members and 5 concurrent requests.
//
// Returns an error if either value is negative.
func WithPresence(maxMembers, concurrency int) Option {
	return func(cfg *pollerConfig) error {
		if maxMembers < 0 || concurrency < 0 {
			return errors.New("presence limits cannot be negative")
		}
		if maxMembers == 0 {
			maxMembers = defaultPresenceMaxMembers
		}
		if concurrency == 0 {
			concurrency = defaultPresenceConcurrency
		}
		cfg.presence = &presenceSettings{maxMembers: maxMembers, concurrency: concurrency}
		return nil
	}
}
