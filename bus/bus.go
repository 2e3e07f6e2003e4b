// Package bus provides an in-process event bus with synchronous,
// ordered delivery. Handlers run on the publishing goroutine, in
// subscription order, and each runs to completion before the next is
// invoked. This is what lets dependent registries rely on earlier
// listeners having already refreshed their state.
package bus

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Event is a named notification. Data is optional and event-specific;
// most structural-change events carry none and consumers re-derive
// their state from scratch.
type Event struct {
	Name string
	Data any
}

// Handler receives a published event.
type Handler func(Event)

type subscription struct {
	id      string
	handler Handler
}

// Subscription identifies a registered handler and allows removal.
type Subscription struct {
	bus  *Bus
	name string
	id   string
}

// Bus dispatches named events to subscribed handlers.
type Bus struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	handlers map[string][]subscription
}

// New creates an event bus. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:   logger,
		handlers: make(map[string][]subscription),
	}
}

// Subscribe registers a handler for the named event. Handlers are
// invoked in subscription order.
func (b *Bus) Subscribe(name string, fn Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	b.handlers[name] = append(b.handlers[name], subscription{id: id, handler: fn})
	return &Subscription{bus: b, name: name, id: id}
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	subs := s.bus.handlers[s.name]
	s.bus.handlers[s.name] = slices.DeleteFunc(subs, func(sub subscription) bool {
		return sub.id == s.id
	})
}

// Publish delivers the event to every handler synchronously, on the
// calling goroutine, in subscription order. A panicking handler is
// recovered and logged so it cannot block later handlers.
func (b *Bus) Publish(name string, data any) {
	b.mu.RLock()
	subs := slices.Clone(b.handlers[name])
	b.mu.RUnlock()

	event := Event{Name: name, Data: data}
	for _, sub := range subs {
		b.dispatch(sub, event)
	}
}

func (b *Bus) dispatch(sub subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				"event", event.Name,
				"subscription", sub.id,
				"panic", r)
		}
	}()
	sub.handler(event)
}
