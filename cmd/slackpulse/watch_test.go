package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/slackpulse"
)

func TestNewEventLine(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name  string
		event slackpulse.Event
		want  string
	}{
		{
			name: "data",
			event: slackpulse.Event{
				Type:  slackpulse.EventData,
				Stats: slackpulse.MemberStats{Total: 120, Active: 42},
				Delay: 5 * time.Second,
				At:    at,
			},
			want: `{"type":"data","at":"2024-01-02T03:04:05Z","stats":{"total":120,"active":42},"delay":"5s"}`,
		},
		{
			name: "change to zero",
			event: slackpulse.Event{
				Type:  slackpulse.EventChange,
				Field: slackpulse.FieldActive,
				Value: 0,
				At:    at,
			},
			want: `{"type":"change","at":"2024-01-02T03:04:05Z","field":"active","value":0}`,
		},
		{
			name: "retry",
			event: slackpulse.Event{
				Type:    slackpulse.EventRetry,
				Delay:   4 * time.Second,
				Attempt: 2,
				Err:     errors.New("fetch failed"),
				At:      at,
			},
			want: `{"type":"retry","at":"2024-01-02T03:04:05Z","error":"fetch failed","delay":"4s","attempt":2}`,
		},
		{
			name: "init error",
			event: slackpulse.Event{
				Type: slackpulse.EventError,
				Err:  errors.New("channel missing"),
				Init: true,
				At:   at,
			},
			want: `{"type":"error","at":"2024-01-02T03:04:05Z","error":"channel missing","init":true}`,
		},
		{
			name:  "fetch",
			event: slackpulse.Event{Type: slackpulse.EventFetch, At: at},
			want:  `{"type":"fetch","at":"2024-01-02T03:04:05Z"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(newEventLine(tt.event))
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("line = %s\nwant   %s", got, tt.want)
			}
		})
	}
}

func TestEventPrinter_WritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	p := newEventPrinter(&buf, slog.New(slog.NewTextHandler(io.Discard, nil)))

	p.print(slackpulse.Event{Type: slackpulse.EventFetch})
	p.print(slackpulse.Event{Type: slackpulse.EventReady, Stats: slackpulse.MemberStats{Total: 3}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], `"type":"ready"`) {
		t.Errorf("second line = %s, want ready event", lines[1])
	}
}

func TestParseEventTypes(t *testing.T) {
	types, err := parseEventTypes([]string{"data", "change"})
	if err != nil {
		t.Fatalf("parseEventTypes() error = %v", err)
	}
	if len(types) != 2 || types[0] != slackpulse.EventData || types[1] != slackpulse.EventChange {
		t.Errorf("parseEventTypes() = %v", types)
	}

	if _, err := parseEventTypes([]string{"bogus"}); err == nil {
		t.Error("parseEventTypes() expected error for unknown type, got nil")
	}
}

// failingWriter rejects every write, like stdout after the reader exits.
type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestEventPrinter_LogsWriteFailure(t *testing.T) {
	var logs bytes.Buffer
	p := newEventPrinter(failingWriter{}, slog.New(slog.NewJSONHandler(&logs, nil)))
	p.print(slackpulse.Event{Type: slackpulse.EventData})

	out := logs.String()
	if !strings.Contains(out, "failed to write event") {
		t.Errorf("log output = %q, want write failure", out)
	}
	if !strings.Contains(out, "broken pipe") || !strings.Contains(out, `"type":"data"`) {
		t.Errorf("log output = %q, want error and event type", out)
	}
}
