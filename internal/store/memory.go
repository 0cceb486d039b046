package store

import (
	"sync"
)

// subscriberBuffer is the channel capacity of each subscription.
const subscriberBuffer = 16

// MemoryStore is an in-memory implementation of [Store].
//
// Snapshots are keyed by workspace. Subscribers receive updates via buffered
// channels; if a subscriber's buffer is full the update is dropped for that
// subscriber only.
type MemoryStore struct {
	mu          sync.RWMutex
	snapshots   map[string]Snapshot
	subscribers map[chan Snapshot]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots:   make(map[string]Snapshot),
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// Update stores a [Snapshot] and notifies all subscribers.
func (m *MemoryStore) Update(s Snapshot) {
	s = clone(s)

	m.mu.Lock()
	m.snapshots[s.Workspace] = s
	m.mu.Unlock()

	m.notifySubscribers(s)
}

// Get returns the stored snapshot for workspace.
func (m *MemoryStore) Get(workspace string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.snapshots[workspace]
	if !ok {
		return Snapshot{}, false
	}
	return clone(s), true
}

// GetAll returns a copy of all stored snapshots. Order is not guaranteed.
func (m *MemoryStore) GetAll() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Snapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		results = append(results, clone(s))
	}
	return results
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Snapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers never blocks: a full subscriber buffer drops the update.
func (m *MemoryStore) notifySubscribers(s Snapshot) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- clone(s):
		default:
		}
	}
}

// clone copies the pointer fields so callers cannot mutate stored state.
func clone(s Snapshot) Snapshot {
	if s.LastError != nil {
		msg := *s.LastError
		s.LastError = &msg
	}
	if s.NextFetchAt != nil {
		at := *s.NextFetchAt
		s.NextFetchAt = &at
	}
	return s
}
