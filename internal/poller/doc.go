// Package poller provides the timer loop and HTTP transport behind slackpulse.
//
// This package is internal to slackpulse. It knows nothing about Slack
// semantics; it runs a fetch job on an interval and backs off when the job
// fails.
//
// The main components are:
//
//   - [Client]: pooled HTTP client used as the Slack API transport
//   - [Scheduler]: single-goroutine timer loop driven by a quartz clock
//   - [Backoff]: retry delay state kept apart from the base interval
//
// Users of the slackpulse library should not need to interact with this
// package directly. Configuration is done through the main slackpulse package.
package poller
