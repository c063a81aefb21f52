package camera

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/camlink/camerad/internal/logging"
	"github.com/camlink/camerad/internal/metrics"
)

// maxConcurrentProbes caps the subprocesses a single poll cycle forks.
const maxConcurrentProbes = 4

// MonitorConfig tunes the hybrid discovery monitor.
type MonitorConfig struct {
	DeviceRange               []int
	PollInterval              float64 // base interval, seconds
	DetectionTimeout          float64 // per-invocation probe timeout, seconds
	EnableCapabilityDetection bool
	FreshnessThreshold        float64 // seconds since last kernel event
	MaxConsecutiveFailures    int
}

// DefaultMonitorConfig returns the production defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		DeviceRange:               []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		PollInterval:              0.1,
		DetectionTimeout:          2.0,
		EnableCapabilityDetection: true,
		FreshnessThreshold:        15.0,
		MaxConsecutiveFailures:    5,
	}
}

// Monitor is the hybrid discovery monitor. It owns the authoritative
// device map and per-device capability state, fed by a kernel event
// stream and an adaptive poller. All state mutation happens under one
// mutex, held for the entire diff-and-emit critical section.
type Monitor struct {
	cfg     MonitorConfig
	prober  *Prober
	checker DeviceChecker
	source  EventSource
	logger  *slog.Logger

	mu        sync.Mutex
	devices   map[string]*Device
	capStates map[string]*CapabilityState
	handlers  []func(DeviceEvent)
	stats     MonitorStats

	intervalMin     float64
	intervalMax     float64
	currentInterval float64
	lastKernelEvent time.Time
	pollFailures    int
	softFailures    int
	jitter          *rand.Rand

	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMonitor creates a hybrid monitor using the platform event source.
func NewMonitor(cfg MonitorConfig) *Monitor {
	return NewMonitorWith(cfg, DefaultEventSource(), nil, nil)
}

// NewMonitorWith creates a monitor with injected collaborators, for
// tests. Nil prober and checker select the real implementations.
func NewMonitorWith(cfg MonitorConfig, source EventSource, prober *Prober, checker DeviceChecker) *Monitor {
	if prober == nil {
		prober = NewProber(time.Duration(cfg.DetectionTimeout * float64(time.Second)))
	}
	if checker == nil {
		checker = statDeviceChecker{}
	}
	base := cfg.PollInterval
	if base <= 0 {
		base = 0.1
	}

	// Jitter is seeded from monitor identity so backoff sequences are
	// reproducible per instance.
	h := fnv.New64a()
	fmt.Fprintf(h, "monitor:%v", cfg.DeviceRange)

	m := &Monitor{
		cfg:             cfg,
		prober:          prober,
		checker:         checker,
		source:          source,
		logger:          logging.GetLogger("monitor"),
		devices:         make(map[string]*Device),
		capStates:       make(map[string]*CapabilityState),
		intervalMin:     math.Max(0.05, base*0.1),
		intervalMax:     math.Min(60, base*50),
		currentInterval: base,
		jitter:          rand.New(rand.NewSource(int64(h.Sum64()))),
	}
	m.stats.CurrentPollInterval = m.currentInterval
	return m
}

// Start launches the kernel event loop and the adaptive poller.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("monitor already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.stats.Running = true
	m.done = make(chan struct{})

	events, err := m.source.Events(runCtx)
	if err != nil {
		m.logger.Warn("Kernel event source unavailable, polling only",
			"source", m.source.Name(), "error", err)
		events = nil
	}

	go m.eventLoop(runCtx, events)
	go m.pollLoop(runCtx)

	m.logger.Info("Discovery monitor started",
		"source", m.source.Name(),
		"poll_interval", m.currentInterval,
		"device_range", m.cfg.DeviceRange)
	return nil
}

// Stop cancels the monitor's tasks and waits for the poller to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.stats.Running = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
	m.logger.Info("Discovery monitor stopped")
}

// SetBaseInterval replaces the base poll interval at runtime, used by
// config hot reload. Non-positive values are ignored.
func (m *Monitor) SetBaseInterval(seconds float64) {
	if seconds <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if seconds == m.cfg.PollInterval {
		return
	}
	m.cfg.PollInterval = seconds
	m.intervalMin = math.Max(0.05, seconds*0.1)
	m.intervalMax = math.Min(60, seconds*50)
	m.currentInterval = seconds
	m.stats.CurrentPollInterval = seconds
	m.logger.Info("Poll interval updated", "interval", seconds)
}

// AddEventHandler registers a device event callback. Handlers run
// inside the monitor's critical section; they must not call back into
// the monitor.
func (m *Monitor) AddEventHandler(handler func(DeviceEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// GetDevice returns a snapshot of one device.
func (m *Monitor) GetDevice(path string) (Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[path]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// GetConnectedDevices returns snapshots of all connected devices.
func (m *Monitor) GetConnectedDevices() []Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Device
	for _, d := range m.devices {
		if d.Status == DeviceStatusConnected {
			out = append(out, *d)
		}
	}
	return out
}

// GetAllDevices returns snapshots of every known device.
func (m *Monitor) GetAllDevices() []Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d)
	}
	return out
}

// EffectiveCapability returns the effective capability for a device
// along with its source ("confirmed", "provisional", or "none") and
// the diagnostics of the last probe.
func (m *Monitor) EffectiveCapability(path string) (*Capability, string, ProbeDiagnostics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.capStates[path]
	if !ok {
		return nil, "none", ProbeDiagnostics{}
	}
	capability, source := state.Effective()
	return capability, source, state.LastDiagnostics
}

// GetStats returns a snapshot of monitor statistics.
func (m *Monitor) GetStats() MonitorStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.stats
	stats.KnownDevices = len(m.devices)
	stats.CurrentPollInterval = m.currentInterval
	return stats
}

// eventLoop consumes kernel events until the context ends.
func (m *Monitor) eventLoop(ctx context.Context, events <-chan SourceEvent) {
	if events == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				m.logger.Warn("Kernel event stream closed, polling only")
				return
			}
			m.handleKernelEvent(ctx, ev)
		}
	}
}

// handleKernelEvent filters and applies one kernel event.
func (m *Monitor) handleKernelEvent(ctx context.Context, ev SourceEvent) {
	m.mu.Lock()
	m.stats.UdevEventsReceived++
	m.lastKernelEvent = time.Now()

	if !m.pathInRange(ev.DevicePath) {
		m.stats.EventsFiltered++
		m.mu.Unlock()
		return
	}

	m.logger.Debug("Kernel event", "device", ev.DevicePath, "action", ev.Action,
		"correlation_id", logging.NewCorrelationID())

	switch ev.Action {
	case "add", "change":
		m.mu.Unlock()
		probe := m.probeIfEnabled(ctx, ev.DevicePath)
		m.mu.Lock()
		m.applyObservation(ev.DevicePath, probe)
	case "remove":
		m.markDisconnected(ev.DevicePath)
	default:
		m.stats.EventsFiltered++
	}
	m.mu.Unlock()
}

// pathInRange filters events to monitored /dev/video indices.
func (m *Monitor) pathInRange(path string) bool {
	if !strings.HasPrefix(path, "/dev/video") {
		return false
	}
	num := DeviceNumForPath(path)
	if num < 0 {
		return false
	}
	for _, n := range m.cfg.DeviceRange {
		if n == num {
			return true
		}
	}
	return false
}

// pollLoop runs the adaptive polling cycle until cancelled or until
// too many consecutive cycle failures.
func (m *Monitor) pollLoop(ctx context.Context) {
	defer close(m.done)

	for {
		m.mu.Lock()
		interval := m.currentInterval
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(interval * float64(time.Second))):
		}

		failedProbes, err := m.pollCycle(ctx)
		if err != nil {
			m.mu.Lock()
			m.pollFailures++
			m.stats.PollingFailures++
			failures := m.pollFailures
			// Exponential backoff with deterministic jitter.
			backoff := m.cfg.PollInterval * math.Pow(2, float64(failures))
			jittered := backoff * (0.8 + 0.4*m.jitter.Float64())
			m.currentInterval = math.Min(m.intervalMax, jittered)
			m.mu.Unlock()

			if failures >= m.cfg.MaxConsecutiveFailures {
				m.logger.Error("Polling failed repeatedly, poller exiting",
					"failures", failures, "error", err)
				return
			}
			m.logger.Warn("Polling cycle failed", "failures", failures, "error", err)
			continue
		}

		m.mu.Lock()
		m.pollFailures = 0
		m.noteCycleOutcome(failedProbes)
		m.mu.Unlock()
	}
}

// noteCycleOutcome adjusts the interval after a completed cycle. A
// cycle with failed probes backs off mildly, one factor of
// (1 + 0.1·streak) per cycle; a clean cycle resets the streak and
// applies the freshness heuristic. Caller holds the mutex.
func (m *Monitor) noteCycleOutcome(failedProbes int) {
	if failedProbes > 0 {
		m.softFailures++
		m.currentInterval = math.Min(m.intervalMax,
			m.currentInterval*(1+0.1*float64(m.softFailures)))
		m.stats.CurrentPollInterval = m.currentInterval
		return
	}
	m.softFailures = 0
	m.adjustInterval()
}

// adjustInterval applies the freshness heuristic: poll faster when the
// kernel event stream looks stale, relax when it is chatty. Caller
// holds the mutex.
func (m *Monitor) adjustInterval() {
	sinceKernel := time.Since(m.lastKernelEvent).Seconds()
	switch {
	case m.lastKernelEvent.IsZero() || sinceKernel > m.cfg.FreshnessThreshold:
		m.currentInterval = math.Max(m.intervalMin, m.currentInterval*0.8)
	case sinceKernel < m.cfg.FreshnessThreshold/2:
		m.currentInterval = math.Min(m.intervalMax, m.currentInterval*1.2)
	}
	m.stats.CurrentPollInterval = m.currentInterval
}

// pollCycle enumerates the monitored range and reconciles state,
// returning the number of failed probes. Probes run concurrently; each
// one forks a subprocess and spends most of its time waiting on it.
func (m *Monitor) pollCycle(ctx context.Context) (int, error) {
	var paths []string
	for _, num := range m.cfg.DeviceRange {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		path := fmt.Sprintf("/dev/video%d", num)
		if m.checker.Exists(path) {
			paths = append(paths, path)
		}
	}

	present := make(map[string]*CapabilityProbe, len(paths))
	failedProbes := 0
	var presentMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)
	for _, path := range paths {
		g.Go(func() error {
			probe := m.probeIfEnabled(gctx, path)
			presentMu.Lock()
			present[path] = probe
			if probe != nil && !probe.Detected {
				failedProbes++
			}
			presentMu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.PollingCycles++

	for path, probe := range present {
		m.applyObservation(path, probe)
	}
	for path := range m.devices {
		if _, ok := present[path]; !ok {
			m.markDisconnected(path)
		}
	}
	return failedProbes, nil
}

// probeIfEnabled runs a capability probe when detection is enabled.
// Returns nil when disabled.
func (m *Monitor) probeIfEnabled(ctx context.Context, path string) *CapabilityProbe {
	if !m.cfg.EnableCapabilityDetection {
		return nil
	}
	probe := m.prober.Probe(ctx, path)

	m.mu.Lock()
	m.stats.CapabilityProbesAttempted++
	switch probe.Diagnostics.ErrorCode {
	case "":
		m.stats.CapabilityProbesSuccessful++
		metrics.ObserveProbe("success")
	case ProbeErrTimeout:
		m.stats.CapabilityTimeouts++
		metrics.ObserveProbe("timeout")
	case ProbeErrParse:
		m.stats.CapabilityParseErrors++
		metrics.ObserveProbe("parse_error")
	default:
		metrics.ObserveProbe("process_error")
	}
	m.mu.Unlock()
	return probe
}

// applyObservation reconciles one observed device. Caller holds the
// mutex.
func (m *Monitor) applyObservation(path string, probe *CapabilityProbe) {
	now := time.Now()
	status := DeviceStatusConnected
	errMsg := ""
	name := ""

	if probe != nil {
		state, ok := m.capStates[path]
		if !ok {
			state = NewCapabilityState()
			m.capStates[path] = state
		}
		if state.Apply(probe) {
			metrics.CapabilityConfirmed()
		}
		if probe.Detected {
			name = probe.DeviceName
		} else {
			status = DeviceStatusError
			errMsg = probe.Diagnostics.Error
			if state.PersistentlyFailing() {
				m.logger.Warn("Device persistently failing capability probes",
					"device", path, "failures", state.ConsecutiveFailures)
			}
		}
	}
	if name == "" {
		name = fmt.Sprintf("Video Device %d", DeviceNumForPath(path))
	}

	existing, known := m.devices[path]
	if !known {
		device := &Device{
			Path:      path,
			DeviceNum: DeviceNumForPath(path),
			Name:      name,
			Status:    status,
			LastSeen:  now,
			Error:     errMsg,
		}
		m.devices[path] = device
		m.stats.DevicesDiscovered++
		m.stats.EventsProcessed++
		m.logger.Info("Device discovered", "device", path, "name", name, "status", status)
		m.emit(DeviceEvent{Type: EventConnected, Device: *device, Timestamp: now})
		metrics.SetDevicesConnected(m.connectedCountLocked())
		return
	}

	existing.LastSeen = now
	if name != "" && existing.Name != name {
		existing.Name = name
	}
	if existing.Status != status {
		old := existing.Status
		existing.Status = status
		existing.Error = errMsg
		m.stats.EventsProcessed++
		m.logger.Info("Device status changed",
			"device", path, "old_status", old, "new_status", status)

		m.emit(DeviceEvent{Type: EventStatusChanged, Device: *existing, Timestamp: now})
		metrics.SetDevicesConnected(m.connectedCountLocked())
	}
}

// markDisconnected emits a DISCONNECTED event and destroys the device
// with its capability state. Caller holds the mutex.
func (m *Monitor) markDisconnected(path string) {
	device, ok := m.devices[path]
	if !ok {
		return
	}
	snapshot := *device
	snapshot.Status = DeviceStatusDisconnected
	snapshot.Error = ""
	delete(m.devices, path)
	delete(m.capStates, path)
	m.stats.EventsProcessed++
	m.logger.Info("Device disconnected", "device", path, "name", snapshot.Name)
	m.emit(DeviceEvent{Type: EventDisconnected, Device: snapshot, Timestamp: time.Now()})
	metrics.SetDevicesConnected(m.connectedCountLocked())
}

// connectedCountLocked counts CONNECTED devices. Caller holds the
// mutex.
func (m *Monitor) connectedCountLocked() int {
	n := 0
	for _, d := range m.devices {
		if d.Status == DeviceStatusConnected {
			n++
		}
	}
	return n
}

// emit delivers an event to all handlers. Caller holds the mutex, so
// events for one device are observed in acceptance order.
func (m *Monitor) emit(ev DeviceEvent) {
	for _, handler := range m.handlers {
		handler(ev)
	}
}
