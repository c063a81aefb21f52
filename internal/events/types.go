package events

// Event type constants for kelindar/event.
const (
	TypeCameraStatus uint32 = iota + 1
	TypeRecordingStatus
	TypeSnapshotTaken
	TypeMediaMTXHealth
	TypeCapabilityDetected
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CameraStatusEvent is published when a camera connects, disconnects,
// or changes status. Payload fields are plain values so subscribers
// never share mutable state with the monitor.
type CameraStatusEvent struct {
	DevicePath string `json:"device"`
	Status     string `json:"status"`
	Name       string `json:"name"`
	Resolution string `json:"resolution"`
	FPS        int    `json:"fps"`
	Timestamp  string `json:"timestamp"`
}

// Type returns the event type identifier for CameraStatusEvent.
func (e CameraStatusEvent) Type() uint32 { return TypeCameraStatus }

// RecordingStatusEvent is published on recording lifecycle transitions.
// Duration is the elapsed recording time in seconds, zero until stop.
type RecordingStatusEvent struct {
	DevicePath string  `json:"device"`
	Status     string  `json:"status"`
	Filename   string  `json:"filename"`
	Duration   float64 `json:"duration"`
	Timestamp  string  `json:"timestamp"`
}

// Type returns the event type identifier for RecordingStatusEvent.
func (e RecordingStatusEvent) Type() uint32 { return TypeRecordingStatus }

// SnapshotTakenEvent is published after a snapshot capture completes.
type SnapshotTakenEvent struct {
	DevicePath string `json:"device"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
}

// Type returns the event type identifier for SnapshotTakenEvent.
func (e SnapshotTakenEvent) Type() uint32 { return TypeSnapshotTaken }

// MediaMTXHealthEvent is published when the health monitor changes
// circuit breaker state.
type MediaMTXHealthEvent struct {
	State     string `json:"state"`
	Healthy   bool   `json:"healthy"`
	Detail    string `json:"detail"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for MediaMTXHealthEvent.
func (e MediaMTXHealthEvent) Type() uint32 { return TypeMediaMTXHealth }

// CapabilityDetectedEvent is published when probed device capabilities
// reach the confirmed state.
type CapabilityDetectedEvent struct {
	DevicePath string   `json:"device"`
	Formats    []string `json:"formats"`
	Timestamp  string   `json:"timestamp"`
}

// Type returns the event type identifier for CapabilityDetectedEvent.
func (e CapabilityDetectedEvent) Type() uint32 { return TypeCapabilityDetected }
