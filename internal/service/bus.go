package service

import (
	"sync"

	"github.com/joeblew999/plat-campus/internal/feature"
)

// CatalogEvent announces a change to the shared campus data.
type CatalogEvent struct {
	Collection feature.Collection
	Action     string // "updated", "paint"
	Origin     string // session that caused it, if any
}

// EventBus is a fan-out pub/sub for catalog changes.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan CatalogEvent]struct{}
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan CatalogEvent]struct{})}
}

// Publish sends e to every subscriber without blocking.
func (b *EventBus) Publish(e CatalogEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel of events and a func that ends the
// subscription and closes the channel.
func (b *EventBus) Subscribe() (<-chan CatalogEvent, func()) {
	ch := make(chan CatalogEvent, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}
