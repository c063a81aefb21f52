package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/camlink/camerad/internal/camera"
	"github.com/camlink/camerad/internal/events"
	"github.com/camlink/camerad/internal/logging"
	"github.com/camlink/camerad/internal/mediamtx"
	"github.com/camlink/camerad/internal/metrics"
)

// RecordingSession is the bookkeeping for one active recording, keyed
// by stream path name. At most one session exists per path.
type RecordingSession struct {
	Device            string    `json:"device"`
	StreamName        string    `json:"stream_name"`
	Filename          string    `json:"filename"`
	Format            string    `json:"format"`
	StartTime         time.Time `json:"start_time"`
	RequestedDuration int       `json:"requested_duration,omitempty"` // seconds, 0 = unbounded
	CorrelationID     string    `json:"correlation_id"`

	autoStop *time.Timer
}

// RecordingResult is returned to RPC callers for start/stop.
type RecordingResult struct {
	Device    string  `json:"device"`
	Filename  string  `json:"filename,omitempty"`
	Status    string  `json:"status"` // STARTED | STOPPED | FAILED
	StartTime string  `json:"start_time,omitempty"`
	Duration  float64 `json:"duration,omitempty"` // seconds
	FileSize  int64   `json:"file_size,omitempty"`
	Format    string  `json:"format,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// PathPatcher is the slice of the MediaMTX client the recorder needs.
type PathPatcher interface {
	PatchPath(ctx context.Context, name string, conf *mediamtx.PathConf) error
}

// RecordingManager toggles MediaMTX path recording and tracks active
// sessions. A failed stop retains the session so the caller can retry.
type RecordingManager struct {
	client PathPatcher
	cfg    mediamtx.Config
	bus    *events.Bus
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*RecordingSession
}

// NewRecordingManager creates a recording manager. The bus may be nil.
func NewRecordingManager(client PathPatcher, cfg mediamtx.Config, bus *events.Bus) *RecordingManager {
	return &RecordingManager{
		client:   client,
		cfg:      cfg,
		bus:      bus,
		logger:   logging.GetLogger("recordings"),
		sessions: make(map[string]*RecordingSession),
	}
}

// StartRecording enables recording on the device's path. Duration is
// in seconds; zero means record until stopped. Format defaults to
// fmp4.
func (m *RecordingManager) StartRecording(ctx context.Context, devicePath string, duration int, format string) *RecordingResult {
	if format == "" {
		format = "fmp4"
	}
	pathName := camera.PathNameForDevice(devicePath)
	stream := camera.StreamNameForDevice(devicePath)
	now := time.Now()
	correlationID := logging.NewCorrelationID()
	logger := logging.WithCorrelation(m.logger, correlationID)

	filename := fmt.Sprintf("%s_%s", stream, now.Format("2006-01-02_15-04-05"))
	session := &RecordingSession{
		Device:            devicePath,
		StreamName:        stream,
		Filename:          filename + recordExtension(format),
		Format:            format,
		StartTime:         now,
		RequestedDuration: duration,
		CorrelationID:     correlationID,
	}

	// The session is inserted before the API call so a concurrent start
	// for the same path fails here instead of double-patching.
	m.mu.Lock()
	if _, exists := m.sessions[pathName]; exists {
		m.mu.Unlock()
		return &RecordingResult{
			Device: devicePath,
			Status: "FAILED",
			Error:  fmt.Sprintf("recording already active for %s", devicePath),
		}
	}
	m.sessions[pathName] = session
	activeCount := len(m.sessions)
	m.mu.Unlock()

	conf := &mediamtx.PathConf{
		Record:       true,
		RecordPath:   filepath.Join(m.cfg.RecordingsPath, filename),
		RecordFormat: format,
	}
	if err := m.client.PatchPath(ctx, pathName, conf); err != nil {
		m.mu.Lock()
		delete(m.sessions, pathName)
		m.mu.Unlock()
		logger.Warn("Failed to enable recording", "path", pathName, "error", err)
		return &RecordingResult{
			Device: devicePath,
			Status: "FAILED",
			Error:  fmt.Sprintf("failed to enable recording: %v", err),
		}
	}

	if duration > 0 {
		timer := time.AfterFunc(time.Duration(duration)*time.Second, func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			m.StopRecording(stopCtx, devicePath)
		})
		m.mu.Lock()
		if m.sessions[pathName] == session {
			session.autoStop = timer
		} else {
			timer.Stop()
		}
		m.mu.Unlock()
	}
	metrics.ObserveRecording("started")
	metrics.SetRecordingsActive(activeCount)

	logger.Info("Recording started",
		"device", devicePath, "path", pathName, "filename", session.Filename)
	m.publish(devicePath, "STARTED", session.Filename, 0)

	return &RecordingResult{
		Device:    devicePath,
		Filename:  session.Filename,
		Status:    "STARTED",
		StartTime: now.Format(time.RFC3339),
		Format:    format,
	}
}

// StopRecording disables recording and clears the session. If the API
// call fails the session is retained so a retry can succeed.
func (m *RecordingManager) StopRecording(ctx context.Context, devicePath string) *RecordingResult {
	pathName := camera.PathNameForDevice(devicePath)

	m.mu.Lock()
	session, active := m.sessions[pathName]
	m.mu.Unlock()
	if !active {
		return &RecordingResult{
			Device: devicePath,
			Status: "FAILED",
			Error:  fmt.Sprintf("no active recording for %s", devicePath),
		}
	}
	logger := logging.WithCorrelation(m.logger, session.CorrelationID)

	if err := m.client.PatchPath(ctx, pathName, &mediamtx.PathConf{Record: false}); err != nil {
		// Session stays registered for retry.
		logger.Warn("Failed to disable recording, session retained",
			"path", pathName, "error", err)
		m.publish(devicePath, "ERROR", session.Filename, 0)
		return &RecordingResult{
			Device:   devicePath,
			Filename: session.Filename,
			Status:   "FAILED",
			Error:    fmt.Sprintf("failed to disable recording: %v", err),
		}
	}

	m.mu.Lock()
	delete(m.sessions, pathName)
	activeCount := len(m.sessions)
	m.mu.Unlock()
	metrics.ObserveRecording("stopped")
	metrics.SetRecordingsActive(activeCount)
	if session.autoStop != nil {
		session.autoStop.Stop()
	}

	duration := time.Since(session.StartTime).Seconds()
	result := &RecordingResult{
		Device:    devicePath,
		Filename:  session.Filename,
		Status:    "STOPPED",
		StartTime: session.StartTime.Format(time.RFC3339),
		Duration:  duration,
		Format:    session.Format,
	}

	if info, err := os.Stat(filepath.Join(m.cfg.RecordingsPath, session.Filename)); err == nil {
		result.FileSize = info.Size()
	} else {
		// MediaMTX may still be finalizing the segment; report the
		// stop as successful anyway.
		logger.Warn("Recording file not readable yet",
			"filename", session.Filename, "error", err)
	}

	logger.Info("Recording stopped",
		"device", devicePath, "filename", session.Filename, "duration", duration)
	m.publish(devicePath, "STOPPED", session.Filename, duration)
	return result
}

// ActiveSession returns the session for a device, if any.
func (m *RecordingManager) ActiveSession(devicePath string) (*RecordingSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[camera.PathNameForDevice(devicePath)]
	if !ok {
		return nil, false
	}
	copied := *session
	copied.autoStop = nil
	return &copied, true
}

// ActiveCount returns the number of active sessions.
func (m *RecordingManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *RecordingManager) publish(devicePath, status, filename string, duration float64) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.RecordingStatusEvent{
		DevicePath: devicePath,
		Status:     status,
		Filename:   filename,
		Duration:   duration,
		Timestamp:  time.Now().Format(time.RFC3339),
	})
}

// recordExtension maps a record format to the file extension MediaMTX
// produces.
func recordExtension(format string) string {
	if format == "mpegts" {
		return ".ts"
	}
	return ".mp4"
}
