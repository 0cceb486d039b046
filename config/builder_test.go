package config

import (
	"testing"
	"time"
)

func TestBuildOptions_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("workspace: acme\ntoken: xoxb-1\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	wp, err := NewPoller(cfg)
	if err != nil {
		t.Fatalf("NewPoller() error = %v", err)
	}
	defer wp.Stop()

	if wp.Host() != "acme" {
		t.Errorf("Host() = %q, want %q", wp.Host(), "acme")
	}
	if wp.PollInterval() != 5*time.Second {
		t.Errorf("PollInterval() = %v, want %v", wp.PollInterval(), 5*time.Second)
	}
	if wp.Port() != 8080 {
		t.Errorf("Port() = %d, want 8080", wp.Port())
	}
}

func TestBuildOptions_AllFields(t *testing.T) {
	yaml := `
workspace: acme
token: xoxb-1
poll_interval: 10s
max_backoff: 5m
reset_backoff: false
request_timeout: 3s
default_channel: announcements
api_url: http://127.0.0.1:9999/api/
port: 9090
presence:
  enabled: true
  max_members: 50
  concurrency: 2
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// defaults plus request timeout, api url and presence
	if got := len(BuildOptions(cfg)); got != 8 {
		t.Errorf("len(BuildOptions()) = %d, want 8", got)
	}

	wp, err := NewPoller(cfg)
	if err != nil {
		t.Fatalf("NewPoller() error = %v", err)
	}
	defer wp.Stop()

	if wp.PollInterval() != 10*time.Second {
		t.Errorf("PollInterval() = %v, want %v", wp.PollInterval(), 10*time.Second)
	}
	if wp.Port() != 9090 {
		t.Errorf("Port() = %d, want 9090", wp.Port())
	}
}

func TestBuildOptions_PresenceDisabled(t *testing.T) {
	cfg, err := Parse([]byte("workspace: acme\ntoken: xoxb-1\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// poll interval, max backoff, reset, channel, port, request timeout
	if got := len(BuildOptions(cfg)); got != 6 {
		t.Errorf("len(BuildOptions()) = %d, want 6", got)
	}
}

func TestNewPoller_InvalidConfig(t *testing.T) {
	cfg := &Config{Workspace: "acme", Token: "xoxb-1", Port: 8080, PollInterval: Duration(-time.Second)}

	if _, err := NewPoller(cfg); err == nil {
		t.Error("NewPoller() expected error for negative poll interval, got nil")
	}
}
