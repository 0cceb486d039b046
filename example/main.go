package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/slackpulse"
)

func main() {
	// start mock workspace (see mock_server.go)
	go StartMockWorkspace(":9999")
	time.Sleep(100 * time.Millisecond)

	wp, err := slackpulse.New("gopherguild", mockToken,
		slackpulse.WithAPIURL("http://localhost:9999/api/"),
		slackpulse.WithPollInterval(5*time.Second),
		slackpulse.WithPort(8080),
		slackpulse.WithListener(func(ev slackpulse.Event) {
			slog.Info("member count changed", "field", ev.Field.String(), "value", ev.Value)
		}, slackpulse.EventChange),
		slackpulse.WithListener(func(ev slackpulse.Event) {
			slog.Warn("fetch failed, retrying", "attempt", ev.Attempt, "delay", ev.Delay.String(), "error", ev.Err)
		}, slackpulse.EventRetry),
	)
	if err != nil {
		slog.Error("failed to create poller", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   slackpulse Demo                                     ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   curl http://localhost:8080/api/stats                ║")
	fmt.Println("  ║   curl -N http://localhost:8080/api/sse               ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   #general drifts every 20-60 seconds                 ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := wp.Serve(ctx); err != nil {
		slog.Error("slackpulse error", "error", err)
		os.Exit(1)
	}
}
