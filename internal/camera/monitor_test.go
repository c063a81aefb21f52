package camera

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	ch chan SourceEvent
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan SourceEvent, 16)}
}

func (f *fakeSource) Events(ctx context.Context) (<-chan SourceEvent, error) { return f.ch, nil }
func (f *fakeSource) Name() string                                           { return "fake" }

type eventRecorder struct {
	mu     sync.Mutex
	events []DeviceEvent
}

func (r *eventRecorder) record(ev DeviceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) snapshot() []DeviceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DeviceEvent(nil), r.events...)
}

func (r *eventRecorder) waitForType(t *testing.T, want EventType) DeviceEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		for _, ev := range r.snapshot() {
			if ev.Type == want {
				return ev
			}
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s, saw %+v", want, r.snapshot())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func testMonitor(t *testing.T, checker *fakeChecker, source EventSource) (*Monitor, *eventRecorder) {
	t.Helper()
	exec := &fakeExecutor{outputs: map[string]string{
		"--info":             sampleInfoOutput,
		"--list-formats-ext": sampleFormatsOutput,
	}}
	cfg := DefaultMonitorConfig()
	cfg.PollInterval = 0.05
	cfg.DeviceRange = []int{0, 1}

	m := NewMonitorWith(cfg, source,
		NewProberWith(exec, checker, time.Second), checker)
	rec := &eventRecorder{}
	m.AddEventHandler(rec.record)
	return m, rec
}

func TestMonitorDiscoversViaKernelEvent(t *testing.T) {
	checker := allPresent("/dev/video0")
	source := newFakeSource()
	m, rec := testMonitor(t, checker, source)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	source.ch <- SourceEvent{DevicePath: "/dev/video0", Action: "add"}

	ev := rec.waitForType(t, EventConnected)
	assert.Equal(t, "/dev/video0", ev.Device.Path)
	assert.Equal(t, DeviceStatusConnected, ev.Device.Status)

	device, ok := m.GetDevice("/dev/video0")
	require.True(t, ok)
	assert.Equal(t, DeviceStatusConnected, device.Status)
}

func TestMonitorFiltersOutOfRangeEvents(t *testing.T) {
	checker := allPresent()
	source := newFakeSource()
	m, rec := testMonitor(t, checker, source)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	source.ch <- SourceEvent{DevicePath: "/dev/video9", Action: "add"}
	source.ch <- SourceEvent{DevicePath: "/dev/sda1", Action: "add"}

	assert.Eventually(t, func() bool {
		return m.GetStats().EventsFiltered >= 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestMonitorDisconnectOnRemove(t *testing.T) {
	checker := allPresent("/dev/video0")
	source := newFakeSource()
	m, rec := testMonitor(t, checker, source)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	source.ch <- SourceEvent{DevicePath: "/dev/video0", Action: "add"}
	rec.waitForType(t, EventConnected)

	checker.present["/dev/video0"] = false
	source.ch <- SourceEvent{DevicePath: "/dev/video0", Action: "remove"}

	ev := rec.waitForType(t, EventDisconnected)
	assert.Equal(t, DeviceStatusDisconnected, ev.Device.Status)
}

func TestMonitorDestroysDeviceOnDisconnect(t *testing.T) {
	checker := allPresent("/dev/video0")
	source := newFakeSource()
	m, rec := testMonitor(t, checker, source)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	source.ch <- SourceEvent{DevicePath: "/dev/video0", Action: "add"}
	rec.waitForType(t, EventConnected)

	checker.present["/dev/video0"] = false
	source.ch <- SourceEvent{DevicePath: "/dev/video0", Action: "remove"}
	rec.waitForType(t, EventDisconnected)

	// Device and capability state go with the disconnect; the map must
	// not accumulate entries across churn.
	_, ok := m.GetDevice("/dev/video0")
	assert.False(t, ok)
	assert.Equal(t, 0, m.GetStats().KnownDevices)
	capability, capSource, _ := m.EffectiveCapability("/dev/video0")
	assert.Nil(t, capability)
	assert.Equal(t, "none", capSource)

	// Reattachment is a fresh discovery.
	checker.present["/dev/video0"] = true
	source.ch <- SourceEvent{DevicePath: "/dev/video0", Action: "add"}
	assert.Eventually(t, func() bool {
		d, present := m.GetDevice("/dev/video0")
		return present && d.Status == DeviceStatusConnected
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMonitorSoftFailureBackoff(t *testing.T) {
	cfg := DefaultMonitorConfig()
	cfg.PollInterval = 1.0
	m := NewMonitorWith(cfg, NullSource{}, nil, allPresent())

	base := m.currentInterval
	m.noteCycleOutcome(1)
	assert.InDelta(t, base*1.1, m.currentInterval, 1e-9)
	m.noteCycleOutcome(2)
	assert.InDelta(t, base*1.1*1.2, m.currentInterval, 1e-9)

	// The mild backoff never exceeds the interval ceiling.
	for i := 0; i < 200; i++ {
		m.noteCycleOutcome(1)
	}
	assert.LessOrEqual(t, m.currentInterval, m.intervalMax)

	// A clean cycle resets the streak.
	m.noteCycleOutcome(0)
	assert.Equal(t, 0, m.softFailures)
}

func TestMonitorPollingDiscovery(t *testing.T) {
	// No kernel events at all; the poller alone must find the device.
	checker := allPresent("/dev/video1")
	m, rec := testMonitor(t, checker, NullSource{})

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	ev := rec.waitForType(t, EventConnected)
	assert.Equal(t, "/dev/video1", ev.Device.Path)

	stats := m.GetStats()
	assert.Greater(t, stats.PollingCycles, 0)
}

func TestMonitorCapabilityConfirmation(t *testing.T) {
	checker := allPresent("/dev/video0")
	m, rec := testMonitor(t, checker, NullSource{})

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	rec.waitForType(t, EventConnected)
	assert.Eventually(t, func() bool {
		_, source, _ := m.EffectiveCapability("/dev/video0")
		return source == "confirmed"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestMonitorIntervalBounds(t *testing.T) {
	cfg := DefaultMonitorConfig()
	cfg.PollInterval = 1.0
	m := NewMonitorWith(cfg, NullSource{}, nil, allPresent())

	assert.InDelta(t, 0.1, m.intervalMin, 1e-9)
	assert.InDelta(t, 50.0, m.intervalMax, 1e-9)

	// With no kernel events ever seen, the interval ratchets down
	// toward the minimum.
	for i := 0; i < 100; i++ {
		m.adjustInterval()
	}
	assert.InDelta(t, m.intervalMin, m.currentInterval, 1e-9)
}

func TestMonitorIntervalRelaxesWhenEventsFresh(t *testing.T) {
	cfg := DefaultMonitorConfig()
	cfg.PollInterval = 1.0
	m := NewMonitorWith(cfg, NullSource{}, nil, allPresent())

	m.lastKernelEvent = time.Now()
	before := m.currentInterval
	m.adjustInterval()
	assert.Greater(t, m.currentInterval, before)
}

func TestMonitorStartStopIdempotence(t *testing.T) {
	m, _ := testMonitor(t, allPresent(), NullSource{})

	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Start(context.Background()))
	m.Stop()
	m.Stop()
}
