package coordinator

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Notification is a live lifecycle signal for dashboards. The persisted
// audit log is authoritative; the bus is fire-and-forget.
type Notification struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	DecisionID string            `json:"decision_id"`
	Payload    map[string]string `json:"payload,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Notification
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]chan Notification),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan Notification) {
	id := ulid.Make().String()
	ch := make(chan Notification, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(n Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- n:
		default:
			// buffer full, drop for this subscriber
		}
	}
}

func (b *Bus) PublishNew(eventType, decisionID string, payload map[string]string) {
	b.Publish(Notification{
		ID:         ulid.Make().String(),
		Type:       eventType,
		DecisionID: decisionID,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	})
}
