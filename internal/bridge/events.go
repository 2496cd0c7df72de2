package bridge

import (
	"sync"
	"time"
)

// Event types published by the engine. Project expiry is an explicit
// publication any interested collaborator (such as a bridge-cleanup client)
// subscribes to, rather than a shared hook registry.
const (
	EventPushAccepted   = "push.accepted"
	EventPushRejected   = "push.rejected"
	EventPushInvalid    = "push.invalid"
	EventPushCompleted  = "push.completed"
	EventPushFailed     = "push.failed"
	EventProjectExpired = "project.expired"
)

type Event struct {
	Type      string `json:"type"`
	ProjectID string `json:"projectId"`
	JobID     string `json:"jobId,omitempty"`
	Version   int    `json:"version,omitempty"`
	Timestamp string `json:"timestamp"`
}

const eventBufferSize = 64

// EventBus is a fan-out publisher for engine lifecycle events. Publishing
// never blocks: a subscriber that cannot keep up loses events rather than
// stalling a push.
type EventBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func NewEventBus() *EventBus {
	return &EventBus{subs: map[int]chan Event{}}
}

// Subscribe registers a new listener. The returned cancel function must be
// called to release the subscription; the channel is closed afterwards.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, eventBufferSize)
	b.subs[id] = ch
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

func (b *EventBus) Publish(event Event) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount reports the number of live subscriptions.
func (b *EventBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
