// Observer pattern interfaces for event-driven integration. Events use the
// CloudEvents specification so external systems (experiment journals,
// dashboards) can consume lifecycle notifications without bespoke formats.
package labmod

import (
	"context"
	"slices"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer receives lifecycle events from a Subject. Observers should handle
// events quickly to avoid delaying other observers.
type Observer interface {
	// OnEvent is called for each event the observer subscribed to.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for registration tracking.
	ObserverID() string
}

// Subject emits lifecycle events to registered observers.
type Subject interface {
	// RegisterObserver adds an observer, optionally filtered by event type.
	// An empty filter receives all events.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. Idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers delivers an event to all matching observers.
	// Observer errors are logged, not propagated.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error
}

// FunctionalObserver wraps a handler function as an Observer.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer backed by the given function.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) *FunctionalObserver {
	return &FunctionalObserver{id: id, handler: handler}
}

func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FunctionalObserver) ObserverID() string { return f.id }

type observerEntry struct {
	observer   Observer
	eventTypes []string
	registered time.Time
}

// EventBus is the stock Subject implementation: a synchronous fan-out with
// per-observer type filters.
type EventBus struct {
	mu        sync.RWMutex
	observers []observerEntry
	logger    Logger
}

// NewEventBus creates an event bus logging observer failures to logger.
func NewEventBus(logger Logger) *EventBus {
	if logger == nil {
		logger = NewSlogLogger(nil)
	}
	return &EventBus{logger: logger}
}

// RegisterObserver implements Subject. Re-registering an observer replaces
// its filter.
func (b *EventBus) RegisterObserver(observer Observer, eventTypes ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, entry := range b.observers {
		if entry.observer.ObserverID() == observer.ObserverID() {
			b.observers[i] = observerEntry{observer: observer, eventTypes: eventTypes, registered: time.Now()}
			return nil
		}
	}
	b.observers = append(b.observers, observerEntry{
		observer:   observer,
		eventTypes: eventTypes,
		registered: time.Now(),
	})
	return nil
}

// UnregisterObserver implements Subject.
func (b *EventBus) UnregisterObserver(observer Observer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, entry := range b.observers {
		if entry.observer.ObserverID() == observer.ObserverID() {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			return nil
		}
	}
	return nil
}

// NotifyObservers implements Subject.
func (b *EventBus) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	b.mu.RLock()
	entries := make([]observerEntry, len(b.observers))
	copy(entries, b.observers)
	b.mu.RUnlock()

	for _, entry := range entries {
		if len(entry.eventTypes) > 0 && !slices.Contains(entry.eventTypes, event.Type()) {
			continue
		}
		if err := entry.observer.OnEvent(ctx, event); err != nil {
			b.logger.Error("Observer failed to handle event",
				"observer", entry.observer.ObserverID(), "type", event.Type(), "error", err)
		}
	}
	return nil
}
