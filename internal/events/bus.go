package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher. Delivery is asynchronous per
// subscriber and ordered for a single subscriber.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates an event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish delivers ev to all subscribers of its concrete type.
// Usage: bus.Publish(ProcessStatusEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event is generic over the concrete type.
	switch e := ev.(type) {
	case ProcessStatusEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	case ConfigChangedEvent:
		event.Publish(b.dispatcher, e)
	case ProcessUsageEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type named by its parameter
// and returns an unsubscribe function. Unknown handler types are ignored.
// Usage: unsub := bus.Subscribe(func(e ProcessStatusEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ProcessStatusEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConfigChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessUsageEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
