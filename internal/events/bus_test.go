package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		panic("unreachable")
	}
}

func TestPublishSubscribe(t *testing.T) {
	bus := New()

	got := make(chan CameraStatusEvent, 1)
	unsub := bus.Subscribe(func(e CameraStatusEvent) { got <- e })
	defer unsub()

	bus.Publish(CameraStatusEvent{DevicePath: "/dev/video0", Status: "CONNECTED"})

	e := waitFor(t, got)
	assert.Equal(t, "/dev/video0", e.DevicePath)
	assert.Equal(t, "CONNECTED", e.Status)
}

func TestSubscriberOnlyReceivesItsType(t *testing.T) {
	bus := New()

	recordings := make(chan RecordingStatusEvent, 1)
	unsub := bus.Subscribe(func(e RecordingStatusEvent) { recordings <- e })
	defer unsub()

	bus.Publish(CameraStatusEvent{DevicePath: "/dev/video0"})
	bus.Publish(RecordingStatusEvent{DevicePath: "/dev/video1", Status: "STARTED"})

	e := waitFor(t, recordings)
	assert.Equal(t, "/dev/video1", e.DevicePath)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()

	got := make(chan SnapshotTakenEvent, 1)
	unsub := bus.Subscribe(func(e SnapshotTakenEvent) { got <- e })
	unsub()

	bus.Publish(SnapshotTakenEvent{DevicePath: "/dev/video0"})

	select {
	case <-got:
		t.Fatal("received event after unsubscribe")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestUnknownHandlerIsNoOp(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(s string) {})
	assert.NotNil(t, unsub)
	unsub()
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()

	ch := make(chan any, 1)
	unsub := SubscribeToChannel[MediaMTXHealthEvent](bus, ch)
	defer unsub()

	bus.Publish(MediaMTXHealthEvent{State: "OPEN", Healthy: false})

	e := waitFor(t, ch)
	health, ok := e.(MediaMTXHealthEvent)
	assert.True(t, ok)
	assert.Equal(t, "OPEN", health.State)
}
