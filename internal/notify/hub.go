// Package notify delivers "key changed elsewhere" events to interested stores.
package notify

import (
	"sync"

	"github.com/bassista/go_syncstore/internal/logger"
	"github.com/google/uuid"
)

// Event reports that the raw value stored under Key was changed by someone else.
// Present is false when the key was removed.
type Event struct {
	Key     string
	Value   string
	Present bool
}

// Handler receives events for the key it was registered with.
type Handler func(Event)

// Channel is the subscription side of a notification channel.
type Channel interface {
	OnChange(key string, h Handler) (unsubscribe func())
}

// Publisher is the delivery side of a notification channel.
type Publisher interface {
	Publish(ev Event)
}

// Hub is an in-process Channel and Publisher. Handlers run synchronously on
// the publishing goroutine, in publish order, without the hub lock held.
type Hub struct {
	mu       sync.RWMutex
	handlers map[string]map[uuid.UUID]Handler
	order    map[string][]uuid.UUID
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		handlers: map[string]map[uuid.UUID]Handler{},
		order:    map[string][]uuid.UUID{},
	}
}

// OnChange registers h for events on key.
func (h *Hub) OnChange(key string, handler Handler) (unsubscribe func()) {
	id := uuid.New()

	h.mu.Lock()
	if h.handlers[key] == nil {
		h.handlers[key] = map[uuid.UUID]Handler{}
	}
	h.handlers[key][id] = handler
	h.order[key] = append(h.order[key], id)
	h.mu.Unlock()

	logger.WithKey("notify", key).Debugf("handler %s registered", id)

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(key, id) })
	}
}

func (h *Hub) remove(key string, id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.handlers[key], id)
	ids := h.order[key]
	for i, other := range ids {
		if other == id {
			h.order[key] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(h.handlers[key]) == 0 {
		delete(h.handlers, key)
		delete(h.order, key)
	}
	logger.WithKey("notify", key).Debugf("handler %s removed", id)
}

// Publish delivers ev to every handler registered for ev.Key.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	ids := h.order[ev.Key]
	targets := make([]Handler, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, h.handlers[ev.Key][id])
	}
	h.mu.RUnlock()

	logger.WithKey("notify", ev.Key).Tracef("publishing to %d handlers (present=%v)", len(targets), ev.Present)
	for _, handler := range targets {
		handler(ev)
	}
}

// Subscribers returns the number of handlers registered for key.
func (h *Hub) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers[key])
}
