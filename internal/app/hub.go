// ABOUTME: Event fan-out to presentation subscribers
// ABOUTME: Each subscriber gets its own buffered channel; slow ones miss events
package app

import (
	"sync"

	"github.com/harperreed/cuebox/internal/scheduler"
)

// Hub broadcasts events to subscribers without blocking the publisher
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan scheduler.Event
	nextID int
	closed bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan scheduler.Event)}
}

// Subscribe returns a channel of future events and a cancel func
func (h *Hub) Subscribe(buffer int) (<-chan scheduler.Event, func()) {
	if buffer <= 0 {
		buffer = scheduler.DefaultEventBuffer
	}
	ch := make(chan scheduler.Event, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers ev to every subscriber with room for it
func (h *Hub) Publish(ev scheduler.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes every subscriber channel
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}
