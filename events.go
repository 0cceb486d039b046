package slackpulse

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names a notification emitted by [WorkspacePoller].
type EventType string

const (
	// EventReady fires once, after the first successful fetch.
	EventReady EventType = "ready"

	// EventData fires after every successful fetch, whether or not anything changed.
	EventData EventType = "data"

	// EventChange fires per field whose value differs from the previous fetch.
	EventChange EventType = "change"

	// EventFetch fires when a fetch request is issued, before it completes.
	EventFetch EventType = "fetch"

	// EventError fires for every failed fetch and for a failed initialization.
	EventError EventType = "error"

	// EventRetry fires after a retry has been scheduled following a failure.
	EventRetry EventType = "retry"
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}

// Field names a tracked member statistic.
type Field string

const (
	// FieldTotal is the member count of the default channel.
	FieldTotal Field = "total"

	// FieldActive is the number of members currently active.
	FieldActive Field = "active"
)

// String returns the string representation of the field.
func (f Field) String() string {
	return string(f)
}

// Event is a single notification.
//
// Only the fields relevant to Type are populated:
//
//	ready   Stats
//	data    Stats, Delay (time until the next fetch)
//	change  Field, Value
//	fetch   -
//	error   Err, Init (true when initialization failed)
//	retry   Delay (backoff before the next fetch), Attempt, Err
type Event struct {
	Type    EventType
	Field   Field
	Value   int
	Stats   MemberStats
	Err     error
	Init    bool
	Delay   time.Duration
	Attempt int
	At      time.Time
}

// Listener receives events. Listeners run synchronously on the poll
// goroutine and must not block; hand long work to another goroutine.
type Listener func(Event)

// Subscription identifies a registered [Listener].
type Subscription struct {
	id string
}

// ID returns the subscription's unique identifier.
func (s Subscription) ID() string {
	return s.id
}

type subscriber struct {
	id       string
	listener Listener
	types    map[EventType]struct{} // empty means every type
}

func (s subscriber) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// eventBus fans events out to subscribers in registration order.
//
// The subscriber slice is replaced on every change so emit can iterate a
// snapshot without holding the lock while listeners run.
type eventBus struct {
	mu          sync.Mutex
	subscribers []subscriber
	logger      *slog.Logger
}

func newEventBus(logger *slog.Logger) *eventBus {
	return &eventBus{logger: logger}
}

func (b *eventBus) subscribe(l Listener, types ...EventType) Subscription {
	sub := subscriber{
		id:       uuid.NewString(),
		listener: l,
	}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	next := make([]subscriber, len(b.subscribers), len(b.subscribers)+1)
	copy(next, b.subscribers)
	b.subscribers = append(next, sub)

	return Subscription{id: sub.id}
}

func (b *eventBus) unsubscribe(s Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub.id != s.id {
			continue
		}
		next := make([]subscriber, 0, len(b.subscribers)-1)
		next = append(next, b.subscribers[:i]...)
		next = append(next, b.subscribers[i+1:]...)
		b.subscribers = next
		return true
	}
	return false
}

func (b *eventBus) emit(ev Event) {
	b.mu.Lock()
	subs := b.subscribers
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.wants(ev.Type) {
			b.invokeSafe(sub, ev)
		}
	}
}

// invokeSafe calls a listener with panic recovery.
// Panics are logged with a correlation ID but do not propagate.
func (b *eventBus) invokeSafe(sub subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("listener panicked",
				"correlation_id", uuid.NewString(),
				"subscription", sub.id,
				"event", ev.Type.String(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	sub.listener(ev)
}
