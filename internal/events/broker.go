package events

import (
	"sync"
)

// Broker fans engine events out to subscribers. Slow subscribers miss
// events instead of blocking the publisher.
type Broker struct {
	subscribers map[EventType][]chan Event
	mu          sync.RWMutex
	bufferSize  int
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  64,
	}
}

// Subscribe creates a subscription to specific event types.
// With no types it receives everything.
func (b *Broker) Subscribe(eventTypes ...EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)

	if len(eventTypes) == 0 {
		eventTypes = []EventType{Wildcard}
	}

	for _, eventType := range eventTypes {
		b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	}

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	closed := false
	for eventType, subscribers := range b.subscribers {
		for i, sub := range subscribers {
			if sub != ch {
				continue
			}
			b.subscribers[eventType] = append(subscribers[:i], subscribers[i+1:]...)
			if !closed {
				close(sub)
				closed = true
			}
			break
		}
		if len(b.subscribers[eventType]) == 0 {
			delete(b.subscribers, eventType)
		}
	}
}

// Publish sends an event to all subscribers
func (b *Broker) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
			// Channel full, skip this event
		}
	}

	for _, ch := range b.subscribers[Wildcard] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Clear removes all subscriptions
func (b *Broker) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[chan Event]bool)
	for _, subscribers := range b.subscribers {
		for _, ch := range subscribers {
			if !seen[ch] {
				close(ch)
				seen[ch] = true
			}
		}
	}

	b.subscribers = make(map[EventType][]chan Event)
}
