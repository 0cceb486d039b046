// Package slackpulse tracks the member statistics of a Slack workspace.
//
// A [WorkspacePoller] resolves a workspace's channels and team once, then
// polls the member count of its default channel ("#general") on a fixed
// interval and reports what it sees to subscribed listeners. It is meant to
// back invite pages and badges that show how many people a community has.
//
// # Quick Start
//
//	wp, _ := slackpulse.New("myteam", os.Getenv("SLACK_TOKEN"))
//
//	wp.Subscribe(func(ev slackpulse.Event) {
//	    fmt.Printf("%d members, %d active\n", ev.Stats.Total, ev.Stats.Active)
//	}, slackpulse.EventData)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	wp.Serve(ctx) // blocks until ctx is cancelled
//
// # Configuration
//
// WorkspacePoller uses the functional options pattern for configuration:
//
//	wp, err := slackpulse.New("myteam", token,
//	    slackpulse.WithPollInterval(10*time.Second),
//	    slackpulse.WithMaxBackoff(5*time.Minute),
//	    slackpulse.WithPresence(100, 5),
//	    slackpulse.WithPort(9090),
//	)
//
// # Events
//
// Every fetch emits [EventFetch]. A successful fetch emits one [EventChange]
// per differing statistic (never on the first fetch), [EventReady] the first
// time only, then [EventData]. A failed fetch emits [EventError] followed by
// [EventRetry] once the backoff delay is scheduled. Listeners run
// synchronously on the poll goroutine.
//
// # Scheduling
//
// Successful fetches are spaced by exactly the poll interval. Consecutive
// failures wait 2, 4, 8, ... times the interval, capped by the max backoff,
// and a Slack rate-limit response extends the wait to at least its
// Retry-After hint. Initialization is not retried: a failure ends the poller
// and is reported by [WorkspacePoller.Err].
//
// # Architecture
//
// slackpulse consists of several internal packages (under internal/):
//
//   - slackapi: the Slack Web API calls, on top of slack-go
//   - poller: HTTP transport, backoff policy and the fetch scheduler
//   - store: in-memory snapshot storage with pub/sub
//   - server: HTTP API and Server-Sent Events
//   - slacktest: a fake Slack Web API for tests and demos
//
// These packages are internal and not part of the public API.
package slackpulse
