package sync

import (
	"sync"
	"time"
)

// EventType identifies a sync lifecycle notification.
type EventType string

const (
	EventSyncStart    EventType = "sync_start"
	EventItemSynced   EventType = "item_synced"
	EventSyncComplete EventType = "sync_complete"
)

// Event is one lifecycle notification delivered to subscribers.
type Event struct {
	Type      EventType
	Data      map[string]interface{}
	Timestamp int64 // ms since epoch
}

// Bus fans lifecycle events out to subscribers. Delivery is synchronous
// within Emit; there is no ordering guarantee across subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]func(Event)
	next int
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers a callback and returns its unsubscribe function.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Emit delivers an event to every current subscriber before returning.
func (b *Bus) Emit(eventType EventType, data map[string]interface{}) {
	b.mu.RLock()
	callbacks := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		callbacks = append(callbacks, fn)
	}
	b.mu.RUnlock()

	event := Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	for _, fn := range callbacks {
		fn(event)
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
