package chatango

import (
	"context"
	"sync"

	"github.com/toddbirchard/chatangogo/internal/logging"
)

// Event carries a named occurrence plus whatever payload its emitter
// attached (a *Message for "message", a *User for "join", and so on —
// handlers type-assert on what they subscribed to).
type Event struct {
	Name    string
	Payload any
}

// Handler receives one Event. It runs in its own goroutine, so a slow or
// panicking handler never blocks the dispatcher or other handlers.
type Handler func(Event)

// EventBus fans dispatched events out to any number of subscribers per
// named channel. Subscriptions are concurrent-safe; emission schedules
// each handler rather than calling it inline, so handler failures are
// isolated from the emitting goroutine and from each other.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	wg       sync.WaitGroup
}

// NewEventBus returns an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[string][]Handler)}
}

// On subscribes fn to every Event emitted under name.
func (b *EventBus) On(name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], fn)
}

// Emit schedules every subscriber of name with payload. Each handler runs
// in its own goroutine; a panicking handler is recovered and logged, not
// propagated.
func (b *EventBus) Emit(ctx context.Context, name string, payload any) {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[name]...)
	b.mu.RUnlock()

	evt := Event{Name: name, Payload: payload}
	for _, h := range hs {
		h := h
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logging.Error(ctx, "event handler panicked")
				}
			}()
			h(evt)
		}()
	}
}

// Wait blocks until every handler scheduled so far has returned. Tests
// use this to observe effects deterministically.
func (b *EventBus) Wait() {
	b.wg.Wait()
}
