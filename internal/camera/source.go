package camera

import "context"

// SourceEvent is a kernel device event as seen by the monitor.
type SourceEvent struct {
	DevicePath string
	Action     string // add | remove | change
}

// EventSource abstracts the kernel device-event stream. The monitor
// composes whichever implementation is available; when events are
// unavailable it runs polling-only against a NullSource.
type EventSource interface {
	// Events starts delivery. The returned channel closes when the
	// context is cancelled or the underlying stream ends.
	Events(ctx context.Context) (<-chan SourceEvent, error)
	Name() string
}

// NullSource is an EventSource that never delivers events, used when
// udev is unavailable. The monitor then relies on polling alone.
type NullSource struct{}

// Events returns a channel that closes on context cancellation.
func (NullSource) Events(ctx context.Context) (<-chan SourceEvent, error) {
	ch := make(chan SourceEvent)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// Name identifies the source in logs.
func (NullSource) Name() string { return "none" }
