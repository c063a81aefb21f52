// Package camera implements V4L2 device discovery and capability
// probing. A hybrid monitor combines udev kernel events with adaptive
// polling and tracks per-device capability state through a
// provisional-to-confirmed validation machine.
package camera

import "time"

// DeviceStatus represents the current status of a V4L2 device.
type DeviceStatus string

const (
	DeviceStatusConnected    DeviceStatus = "CONNECTED"
	DeviceStatusDisconnected DeviceStatus = "DISCONNECTED"
	DeviceStatusError        DeviceStatus = "ERROR"
	DeviceStatusProbing      DeviceStatus = "PROBING"
)

// Device represents a V4L2 video device tracked by the monitor.
type Device struct {
	Path      string       `json:"path"`
	DeviceNum int          `json:"device_num"`
	Name      string       `json:"name"`
	Status    DeviceStatus `json:"status"`
	LastSeen  time.Time    `json:"last_seen"`
	Error     string       `json:"error,omitempty"`
}

// FormatInfo is a pixel format reported by a capability probe.
type FormatInfo struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// ProbeDiagnostics carries structured context about a probe attempt.
// Attempted distinguishes "never probed" from "probed and failed".
type ProbeDiagnostics struct {
	Attempted     bool    `json:"attempted"`
	Accessible    bool    `json:"accessible"`
	DurationMS    float64 `json:"duration_ms"`
	ErrorCode     string  `json:"error_code,omitempty"`
	Error         string  `json:"error,omitempty"`
	InfoParsed    bool    `json:"info_parsed"`
	FormatsParsed bool    `json:"formats_parsed"`
	FallbackRates bool    `json:"fallback_rates"`
}

// Probe error codes.
const (
	ProbeErrTimeout = "timeout"
	ProbeErrProcess = "process_error"
	ProbeErrParse   = "parse_error"
)

// CapabilityProbe is the result of one introspection attempt against a
// device. Immutable once produced.
type CapabilityProbe struct {
	DevicePath  string           `json:"device_path"`
	Detected    bool             `json:"detected"`
	DeviceName  string           `json:"device_name,omitempty"`
	Driver      string           `json:"driver,omitempty"`
	Formats     []FormatInfo     `json:"formats"`
	Resolutions []string         `json:"resolutions"`
	FrameRates  []string         `json:"frame_rates"`
	Timestamp   time.Time        `json:"timestamp"`
	Diagnostics ProbeDiagnostics `json:"diagnostics"`
}

// Capability is a merged set of capability data for a device.
type Capability struct {
	Formats     []string `json:"formats"`
	Resolutions []string `json:"resolutions"`
	FrameRates  []string `json:"frame_rates"`
}

// EventType identifies a device lifecycle transition.
type EventType string

const (
	EventConnected     EventType = "CONNECTED"
	EventDisconnected  EventType = "DISCONNECTED"
	EventStatusChanged EventType = "STATUS_CHANGED"
)

// DeviceEvent is delivered to registered handlers on device
// transitions. The Device field is a snapshot copy.
type DeviceEvent struct {
	Type      EventType
	Device    Device
	Timestamp time.Time
}

// MonitorStats tracks discovery statistics, reported via get_status.
type MonitorStats struct {
	KnownDevices               int     `json:"known_devices"`
	DevicesDiscovered          int     `json:"devices_discovered"`
	EventsProcessed            int     `json:"events_processed"`
	EventsFiltered             int     `json:"events_filtered"`
	PollingCycles              int     `json:"polling_cycles"`
	PollingFailures            int     `json:"polling_failures"`
	CurrentPollInterval        float64 `json:"current_poll_interval"`
	CapabilityProbesAttempted  int     `json:"capability_probes_attempted"`
	CapabilityProbesSuccessful int     `json:"capability_probes_successful"`
	CapabilityTimeouts         int     `json:"capability_timeouts"`
	CapabilityParseErrors      int     `json:"capability_parse_errors"`
	Running                    bool    `json:"running"`
	UdevEventsReceived         int     `json:"udev_events_received"`
}
