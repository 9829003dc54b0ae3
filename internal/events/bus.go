package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handler receives events for a subscribed topic
type Handler func(*Event)

// SubscriptionID identifies a subscription for later removal
type SubscriptionID string

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Bus is a synchronous publish/subscribe hub. A panicking handler is
// recovered and logged; the remaining handlers still receive the event.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]subscription
	topics      map[SubscriptionID]EventType
	log         zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[EventType][]subscription),
		topics:      make(map[SubscriptionID]EventType),
		log:         log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers handler for eventType and returns its subscription id
func (b *Bus) Subscribe(eventType EventType, handler Handler) SubscriptionID {
	id := SubscriptionID(uuid.NewString())

	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})
	b.topics[id] = eventType
	return id
}

// Unsubscribe removes a subscription. It returns false if id is unknown.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	eventType, ok := b.topics[id]
	if !ok {
		return false
	}
	delete(b.topics, id)

	subs := b.subscribers[eventType]
	for i, s := range subs {
		if s.id == id {
			// Copy so a concurrent Emit iterating the old slice is unaffected
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			b.subscribers[eventType] = next
			break
		}
	}
	if len(b.subscribers[eventType]) == 0 {
		delete(b.subscribers, eventType)
	}
	return true
}

// SubscriberCount returns the number of handlers registered for eventType
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

// Emit delivers an event to every current subscriber of eventType
func (b *Bus) Emit(eventType EventType, module string, data EventData) {
	b.mu.RLock()
	subs := b.subscribers[eventType]
	b.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	for _, s := range subs {
		b.deliver(s, event)
	}
}

func (b *Bus) deliver(s subscription, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("event_type", string(event.Type)).
				Str("subscription", string(s.id)).
				Str("panic", fmt.Sprint(r)).
				Msg("Event handler panicked")
		}
	}()
	s.handler(event)
}
