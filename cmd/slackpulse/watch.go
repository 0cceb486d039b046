package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jpalmerr/slackpulse"
	"github.com/jpalmerr/slackpulse/config"
	"github.com/spf13/cobra"
)

// watchCmd prints poller events without starting the HTTP API.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print workspace events as JSON lines",
	Long: `Poll a Slack workspace and print every event to stdout, one JSON
object per line. Logs go to stderr.

Use --type to restrict the output to some event types.

Example:
  slackpulse watch -c config.yaml
  slackpulse watch -c config.yaml --type data --type change`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	watchCmd.Flags().StringSlice("type", nil, "event types to print (ready, data, change, fetch, error, retry)")
	_ = watchCmd.MarkFlagRequired("config")
}

// eventLine is the JSON shape of a printed event.
type eventLine struct {
	Type    string                  `json:"type"`
	At      time.Time               `json:"at"`
	Field   string                  `json:"field,omitempty"`
	Value   *int                    `json:"value,omitempty"`
	Stats   *slackpulse.MemberStats `json:"stats,omitempty"`
	Error   string                  `json:"error,omitempty"`
	Init    bool                    `json:"init,omitempty"`
	Delay   string                  `json:"delay,omitempty"`
	Attempt int                     `json:"attempt,omitempty"`
}

func newEventLine(ev slackpulse.Event) eventLine {
	line := eventLine{Type: ev.Type.String(), At: ev.At}

	switch ev.Type {
	case slackpulse.EventReady:
		line.Stats = &ev.Stats
	case slackpulse.EventData:
		line.Stats = &ev.Stats
		line.Delay = ev.Delay.String()
	case slackpulse.EventChange:
		line.Field = ev.Field.String()
		v := ev.Value
		line.Value = &v
	case slackpulse.EventError:
		line.Init = ev.Init
	case slackpulse.EventRetry:
		line.Delay = ev.Delay.String()
		line.Attempt = ev.Attempt
	}
	if ev.Err != nil {
		line.Error = ev.Err.Error()
	}
	return line
}

// eventPrinter writes events to w as JSON lines. Write failures are logged
// once per event; the poller keeps running.
type eventPrinter struct {
	mu     sync.Mutex
	enc    *json.Encoder
	logger *slog.Logger
}

func newEventPrinter(w io.Writer, logger *slog.Logger) *eventPrinter {
	return &eventPrinter{enc: json.NewEncoder(w), logger: logger}
}

func (p *eventPrinter) print(ev slackpulse.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enc.Encode(newEventLine(ev)); err != nil {
		p.logger.Error("failed to write event", "type", ev.Type.String(), "error", err)
	}
}

func parseEventTypes(names []string) ([]slackpulse.EventType, error) {
	known := map[string]slackpulse.EventType{
		slackpulse.EventReady.String():  slackpulse.EventReady,
		slackpulse.EventData.String():   slackpulse.EventData,
		slackpulse.EventChange.String(): slackpulse.EventChange,
		slackpulse.EventFetch.String():  slackpulse.EventFetch,
		slackpulse.EventError.String():  slackpulse.EventError,
		slackpulse.EventRetry.String():  slackpulse.EventRetry,
	}

	types := make([]slackpulse.EventType, 0, len(names))
	for _, name := range names {
		t, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("unknown event type %q", name)
		}
		types = append(types, t)
	}
	return types, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(os.Stderr, logLevel)
	if err != nil {
		return err
	}

	names, _ := cmd.Flags().GetStringSlice("type")
	types, err := parseEventTypes(names)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	printer := newEventPrinter(cmd.OutOrStdout(), logger)
	wp, err := config.NewPoller(cfg,
		slackpulse.WithLogger(logger),
		slackpulse.WithListener(printer.print, types...),
	)
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wp.Start(ctx)

	select {
	case <-ctx.Done():
		wp.Stop()
		return nil
	case <-wp.Done():
		if err := wp.Err(); err != nil {
			return fmt.Errorf("watch failed: %w", err)
		}
		return nil
	}
}
