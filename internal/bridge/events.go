package bridge

import (
	"log/slog"
	"sync"
)

// Event types emitted by the bridge.
const (
	EventBulbState    = "bulb_state"
	EventBulbOnline   = "bulb_online"
	EventBulbOffline  = "bulb_offline"
	EventSessionState = "session_state"
	EventInventory    = "inventory_imported"
)

// Event is one bridge event. Data is a JSON-friendly map.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// EventBus fans bridge events out to subscribers (mqtt, web, automation).
type EventBus struct {
	logger *slog.Logger

	mu          sync.RWMutex
	handlers    map[string]map[uint64]EventHandler
	allHandlers map[uint64]EventHandler
	nextID      uint64
}

// NewEventBus creates an event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger:      logger,
		handlers:    make(map[string]map[uint64]EventHandler),
		allHandlers: make(map[uint64]EventHandler),
	}
}

// On subscribes to one event type. The returned function unsubscribes.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	if eb.handlers[eventType] == nil {
		eb.handlers[eventType] = make(map[uint64]EventHandler)
	}
	eb.handlers[eventType][id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.handlers[eventType], id)
	}
}

// OnAll subscribes to every event. The returned function unsubscribes.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.allHandlers[id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.allHandlers, id)
	}
}

// Emit delivers an event to all matching subscribers, synchronously. A
// panicking subscriber is recovered so it cannot take the dispatch loop down.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.handlers[event.Type])+len(eb.allHandlers))
	for _, h := range eb.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range eb.allHandlers {
		handlers = append(handlers, h)
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}()
	}
}
