package store

import "time"

// Snapshot is the latest observed state of a workspace.
//
// Snapshot is the storage representation served by the REST API and the SSE
// stream. It is decoupled from the poller's event types so the wire format
// can evolve independently.
type Snapshot struct {
	// Workspace is the workspace subdomain.
	Workspace string `json:"workspace"`

	// Organization is the team name.
	Organization string `json:"organization"`

	// LogoURL is the team icon, omitted while Slack's default icon is in use.
	LogoURL string `json:"logo_url,omitempty"`

	// Total is the member count of the default channel.
	Total int `json:"total"`

	// Active is the active member count.
	Active int `json:"active"`

	// Ready is true once a fetch has succeeded.
	Ready bool `json:"ready"`

	// Fetches counts successful fetches.
	Fetches int `json:"fetches"`

	// ConsecutiveFailures counts failed fetches since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// LastError is the message of the most recent failure.
	// nil once a later fetch succeeds.
	LastError *string `json:"last_error"`

	// UpdatedAt is when the snapshot last changed.
	UpdatedAt time.Time `json:"updated_at"`

	// NextFetchAt is when the next fetch is due. nil when nothing is scheduled.
	NextFetchAt *time.Time `json:"next_fetch_at,omitempty"`
}

// Store defines the interface for storing and subscribing to snapshots.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism pushes updates to connected clients via Server-Sent Events.
type Store interface {
	// Update stores a snapshot and notifies all subscribers.
	// Snapshots are keyed by Workspace; later updates replace earlier ones.
	Update(s Snapshot)

	// Get returns the snapshot of a workspace. The second return value is
	// false if nothing has been stored for it yet.
	Get(workspace string) (Snapshot, bool)

	// GetAll returns all currently stored snapshots.
	// The returned slice is a copy; modifications do not affect the store.
	GetAll() []Snapshot

	// Subscribe returns a channel that receives snapshot updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Snapshot

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Snapshot)
}
