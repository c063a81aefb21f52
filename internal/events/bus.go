// Package events provides the in-process event bus that decouples the
// camera monitor, capture manager, and health monitor from their
// consumers (WebSocket notifier, metrics, orchestrator).
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(CameraStatusEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event is generic over the concrete type, so dispatch
	// through a type switch rather than the interface.
	switch e := ev.(type) {
	case CameraStatusEvent:
		event.Publish(b.dispatcher, e)
	case RecordingStatusEvent:
		event.Publish(b.dispatcher, e)
	case SnapshotTakenEvent:
		event.Publish(b.dispatcher, e)
	case MediaMTXHealthEvent:
		event.Publish(b.dispatcher, e)
	case CapabilityDetectedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type determines which events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e CameraStatusEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(CameraStatusEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingStatusEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SnapshotTakenEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(MediaMTXHealthEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CapabilityDetectedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
