package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// Job performs one fetch cycle. A non-nil error schedules a retry with
// backoff; nil schedules the next cycle after the base interval.
type Job func(ctx context.Context) error

// RetryHint inspects a job error and may return a minimum delay requested
// by the remote side (for example a Retry-After header).
type RetryHint func(err error) (time.Duration, bool)

// Outcome describes a completed cycle and the delay chosen for the next one.
type Outcome struct {
	// Err is the error returned by the job, nil on success.
	Err error

	// Delay is the time until the next cycle runs.
	Delay time.Duration

	// Attempt is the number of consecutive failures, zero on success.
	Attempt int

	// NextAt is when the next cycle is due according to the scheduler's clock.
	NextAt time.Time
}

// Scheduler runs a single [Job] in a timer-driven loop.
//
// Cycles never overlap: the next timer is armed only after the previous job
// returned, so state owned by the job needs no extra coordination. The first
// cycle runs immediately when [Scheduler.Run] is called.
//
// Time is read through a quartz.Clock so tests can drive the loop with a
// mock clock. The timer is created with the tags "scheduler", "next".
type Scheduler struct {
	job         Job
	backoff     *Backoff
	clock       quartz.Clock
	logger      *slog.Logger
	hint        RetryHint
	onScheduled func(Outcome)
}

// NewScheduler creates a new [Scheduler].
//
// Parameters:
//   - job: the cycle to run
//   - backoff: delay policy for successes and failures
//   - clock: time source, quartz.NewReal() in production
//   - logger: logger for scheduling decisions and panic recovery
func NewScheduler(job Job, backoff *Backoff, clock quartz.Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		job:     job,
		backoff: backoff,
		clock:   clock,
		logger:  logger,
	}
}

// SetRetryHint installs a [RetryHint]. Must be called before [Scheduler.Run].
func (s *Scheduler) SetRetryHint(h RetryHint) {
	s.hint = h
}

// OnScheduled registers a hook that runs after the next timer has been armed.
// Must be called before [Scheduler.Run].
func (s *Scheduler) OnScheduled(fn func(Outcome)) {
	s.onScheduled = fn
}

// Run executes the loop until ctx is cancelled. It blocks.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		err := s.safeRun(ctx)
		if ctx.Err() != nil {
			return
		}

		outcome := s.next(err)

		timer := s.clock.NewTimer(outcome.Delay, "scheduler", "next")
		outcome.NextAt = s.clock.Now().Add(outcome.Delay)

		if s.onScheduled != nil {
			s.onScheduled(outcome)
		}

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// next decides the delay for the cycle after one that returned err.
func (s *Scheduler) next(err error) Outcome {
	if err == nil {
		return Outcome{Delay: s.backoff.Success()}
	}

	delay := s.backoff.Failure()
	if s.hint != nil {
		if minDelay, ok := s.hint(err); ok && minDelay > delay {
			delay = minDelay
		}
	}

	attempt := s.backoff.Failures()
	s.logger.Warn("cycle failed, backing off",
		"attempt", attempt,
		"delay", delay.String(),
		"error", err.Error(),
	)

	return Outcome{Err: err, Delay: delay, Attempt: attempt}
}

// safeRun calls the job with panic recovery.
// A panicking job is treated as a failed cycle; the stack trace is logged
// with a correlation ID that is also carried in the returned error.
func (s *Scheduler) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			stack := debug.Stack()

			s.logger.Error("job panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(stack),
			)

			err = goerr.New("job panic", goerr.V("correlation_id", correlationID))
		}
	}()
	return s.job(ctx)
}
