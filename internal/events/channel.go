package events

import "github.com/kelindar/event"

// SubscribeToChannel bridges callback-based subscriptions to channels,
// for consumers that run a select loop (the WebSocket notifier).
// Events are dropped when the channel is full so a slow consumer never
// blocks the dispatcher.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
