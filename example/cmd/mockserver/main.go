// Standalone mock Slack workspace for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	SLACK_TOKEN=xoxb-mock go run ./cmd/slackpulse serve -c example/config.yaml
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/jpalmerr/slackpulse/internal/slacktest"
)

func main() {
	fmt.Println("Mock Slack workspace starting on :9999")
	fmt.Println("Token: xoxb-mock")
	fmt.Println("#general gains or loses members every 20-60s; conversations.info fails now and then")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ws := slacktest.NewWorkspace("xoxb-mock")
	ws.SetTeam("Mock Co", "https://example.com/mock_132.png", false)
	ws.AddChannel("C001", "general", 100)
	ws.AddChannel("C002", "random", 60)
	ws.AddChannel("C003", "announcements", 100)

	go func() {
		for {
			time.Sleep(time.Duration(20+rand.Intn(41)) * time.Second)

			from := ws.NumMembers("C001")
			to := max(from+rand.Intn(21)-10, 1)
			ws.SetNumMembers("C001", to)
			slog.Info("member count change", "channel", "general", "from", from, "to", to)

			// exercise the poller's backoff every so often
			if rand.Intn(4) == 0 {
				ws.FailNext(slacktest.MethodConversationsInfo, 1+rand.Intn(3), http.StatusServiceUnavailable)
				slog.Info("injected failures", "method", slacktest.MethodConversationsInfo)
			}
		}
	}()

	if err := http.ListenAndServe(":9999", ws); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
