package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errCycle = errors.New("cycle failed")

// scriptedJob returns the errors in order, then nil forever.
func scriptedJob(calls *atomic.Int32, errs ...error) Job {
	return func(ctx context.Context) error {
		i := int(calls.Add(1)) - 1
		if i < len(errs) {
			return errs[i]
		}
		return nil
	}
}

func waitOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for scheduled outcome")
		return Outcome{}
	}
}

// runScheduler starts s.Run in a goroutine and returns a stop function that
// cancels it and waits for the loop to exit.
func runScheduler(t *testing.T, s *Scheduler) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Run() did not return after cancellation")
		}
	}
}

func TestScheduler_RunsImmediately(t *testing.T) {
	mClock := quartz.NewMock(t)
	var calls atomic.Int32
	outcomes := make(chan Outcome, 10)

	s := NewScheduler(scriptedJob(&calls), NewBackoff(time.Second, time.Hour, true), mClock, testLogger())
	s.OnScheduled(func(o Outcome) { outcomes <- o })

	stop := runScheduler(t, s)
	defer stop()

	o := waitOutcome(t, outcomes)
	if o.Err != nil {
		t.Errorf("Err = %v, want nil", o.Err)
	}
	if o.Delay != time.Second {
		t.Errorf("Delay = %v, want %v", o.Delay, time.Second)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestScheduler_BackoffSequence(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mClock := quartz.NewMock(t)
	var calls atomic.Int32
	outcomes := make(chan Outcome, 10)

	s := NewScheduler(
		scriptedJob(&calls, errCycle, errCycle, errCycle),
		NewBackoff(time.Second, time.Hour, true),
		mClock,
		testLogger(),
	)
	s.OnScheduled(func(o Outcome) { outcomes <- o })

	stop := runScheduler(t, s)
	defer stop()

	want := []struct {
		delay   time.Duration
		attempt int
		failed  bool
	}{
		{2 * time.Second, 1, true},
		{4 * time.Second, 2, true},
		{8 * time.Second, 3, true},
		{1 * time.Second, 0, false},
	}

	start := mClock.Now()
	for i, w := range want {
		o := waitOutcome(t, outcomes)
		if o.Delay != w.delay {
			t.Errorf("outcome %d: Delay = %v, want %v", i, o.Delay, w.delay)
		}
		if o.Attempt != w.attempt {
			t.Errorf("outcome %d: Attempt = %d, want %d", i, o.Attempt, w.attempt)
		}
		if (o.Err != nil) != w.failed {
			t.Errorf("outcome %d: Err = %v, want failed=%v", i, o.Err, w.failed)
		}
		if !o.NextAt.Equal(mClock.Now().Add(o.Delay)) {
			t.Errorf("outcome %d: NextAt = %v, want %v", i, o.NextAt, mClock.Now().Add(o.Delay))
		}
		mClock.Advance(o.Delay).MustWait(ctx)
	}

	// 2+4+8+1 seconds of mock time elapsed across four cycles
	if elapsed := mClock.Since(start); elapsed != 15*time.Second {
		t.Errorf("elapsed = %v, want %v", elapsed, 15*time.Second)
	}
}

func TestScheduler_RetryHintRaisesDelay(t *testing.T) {
	mClock := quartz.NewMock(t)
	var calls atomic.Int32
	outcomes := make(chan Outcome, 10)

	s := NewScheduler(scriptedJob(&calls, errCycle), NewBackoff(time.Second, time.Hour, true), mClock, testLogger())
	s.SetRetryHint(func(err error) (time.Duration, bool) {
		return 30 * time.Second, errors.Is(err, errCycle)
	})
	s.OnScheduled(func(o Outcome) { outcomes <- o })

	stop := runScheduler(t, s)
	defer stop()

	o := waitOutcome(t, outcomes)
	if o.Delay != 30*time.Second {
		t.Errorf("Delay = %v, want %v", o.Delay, 30*time.Second)
	}
}

func TestScheduler_RetryHintNeverShortens(t *testing.T) {
	mClock := quartz.NewMock(t)
	var calls atomic.Int32
	outcomes := make(chan Outcome, 10)

	s := NewScheduler(scriptedJob(&calls, errCycle), NewBackoff(time.Minute, time.Hour, true), mClock, testLogger())
	s.SetRetryHint(func(err error) (time.Duration, bool) {
		return time.Second, true
	})
	s.OnScheduled(func(o Outcome) { outcomes <- o })

	stop := runScheduler(t, s)
	defer stop()

	o := waitOutcome(t, outcomes)
	if o.Delay != 2*time.Minute {
		t.Errorf("Delay = %v, want %v", o.Delay, 2*time.Minute)
	}
}

func TestScheduler_JobPanicIsRecovered(t *testing.T) {
	mClock := quartz.NewMock(t)
	outcomes := make(chan Outcome, 10)

	job := func(ctx context.Context) error {
		panic("boom")
	}

	s := NewScheduler(job, NewBackoff(time.Second, time.Hour, true), mClock, testLogger())
	s.OnScheduled(func(o Outcome) { outcomes <- o })

	stop := runScheduler(t, s)
	defer stop()

	o := waitOutcome(t, outcomes)
	if o.Err == nil {
		t.Fatal("Err = nil, want panic error")
	}
	if !strings.Contains(o.Err.Error(), "job panic") {
		t.Errorf("Err = %v, want it to contain 'job panic'", o.Err)
	}
}

func TestScheduler_StopsOnCancelWhileWaiting(t *testing.T) {
	mClock := quartz.NewMock(t)
	var calls atomic.Int32
	outcomes := make(chan Outcome, 10)

	s := NewScheduler(scriptedJob(&calls), NewBackoff(time.Hour, time.Hour, true), mClock, testLogger())
	s.OnScheduled(func(o Outcome) { outcomes <- o })

	stop := runScheduler(t, s)
	waitOutcome(t, outcomes)

	// the loop is parked on an hour-long timer; cancellation must not wait for it
	stop()

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestScheduler_CancelledDuringJob(t *testing.T) {
	mClock := quartz.NewMock(t)
	scheduled := make(chan Outcome, 1)

	ctx, cancel := context.WithCancel(context.Background())
	job := func(jobCtx context.Context) error {
		cancel()
		return jobCtx.Err()
	}

	s := NewScheduler(job, NewBackoff(time.Second, time.Hour, true), mClock, testLogger())
	s.OnScheduled(func(o Outcome) { scheduled <- o })

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after job cancelled the context")
	}

	select {
	case o := <-scheduled:
		t.Errorf("unexpected outcome after cancellation: %+v", o)
	default:
	}
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(func(context.Context) error { return nil }, NewBackoff(time.Second, 0, true), nil, nil)
	if s.clock == nil {
		t.Error("clock should default to a real clock")
	}
	if s.logger == nil {
		t.Error("logger should default to slog.Default()")
	}
}
