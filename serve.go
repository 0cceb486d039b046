package slackpulse

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"

	"github.com/jpalmerr/slackpulse/internal/server"
	"github.com/jpalmerr/slackpulse/internal/store"
)

// Serve starts the poller and an HTTP API over its state, and blocks until
// ctx is cancelled or initialization fails.
//
// The API is available at http://localhost:<port>:
//
//   - GET /api/stats returns the current snapshot as JSON
//   - GET /api/sse streams snapshots as Server-Sent Events
//   - GET /api/channels/{name} resolves a channel name to its ID
//   - GET /healthz answers 200 once the first fetch has succeeded
//
// The caller controls the lifecycle via the context. For signal handling,
// use [signal.NotifyContext]:
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//	wp.Serve(ctx)
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server fails
// to start or the workspace cannot be initialized.
func (wp *WorkspacePoller) Serve(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	snapshots := store.NewMemoryStore()
	rec := &snapshotRecorder{store: snapshots, poller: wp}
	sub := wp.Subscribe(rec.record)
	defer wp.Unsubscribe(sub)

	snapshots.Update(store.Snapshot{Workspace: wp.host, UpdatedAt: wp.clock.Now()})

	httpServer := server.NewServer(snapshots, wp.host, wp.port, wp.ChannelID, wp.logger)
	if err := httpServer.Start(ctx); err != nil {
		return goerr.Wrap(err, "failed to start HTTP server", goerr.V(WorkspaceKey, wp.host))
	}

	wp.logger.Info("api available",
		"url", fmt.Sprintf("http://localhost:%d", wp.port),
		"interval", wp.interval.String(),
	)

	wp.Start(ctx)

	select {
	case <-ctx.Done():
		wp.Stop()
		return nil
	case <-wp.Done():
		return wp.Err()
	}
}

// snapshotRecorder folds poller events into the snapshot store. Events
// arrive on the poll goroutine one at a time, so last needs no lock.
type snapshotRecorder struct {
	store  store.Store
	poller *WorkspacePoller
	last   store.Snapshot
}

func (r *snapshotRecorder) record(ev Event) {
	snap := r.last
	snap.Workspace = r.poller.host
	snap.UpdatedAt = ev.At

	switch ev.Type {
	case EventData:
		org := r.poller.Organization()
		snap.Organization = org.Name
		snap.LogoURL = org.LogoURL
		snap.Total = ev.Stats.Total
		snap.Active = ev.Stats.Active
		snap.Ready = true
		snap.Fetches++
		snap.ConsecutiveFailures = 0
		snap.LastError = nil
		next := ev.At.Add(ev.Delay)
		snap.NextFetchAt = &next

	case EventRetry:
		snap.ConsecutiveFailures = ev.Attempt
		if ev.Err != nil {
			msg := ev.Err.Error()
			snap.LastError = &msg
		}
		next := ev.At.Add(ev.Delay)
		snap.NextFetchAt = &next

	case EventError:
		if !ev.Init {
			return
		}
		msg := ev.Err.Error()
		snap.LastError = &msg
		snap.NextFetchAt = nil

	default:
		return
	}

	r.last = snap
	r.store.Update(snap)
}
