package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/camlink/camerad/internal/camera"
	"github.com/camlink/camerad/internal/events"
	"github.com/camlink/camerad/internal/logging"
	"github.com/camlink/camerad/internal/mediamtx"
	"github.com/camlink/camerad/internal/metrics"
)

// SnapshotResult is returned to RPC callers. Failures are structured
// results, never errors.
type SnapshotResult struct {
	Device    string `json:"device"`
	Filename  string `json:"filename"`
	FilePath  string `json:"file_path,omitempty"`
	Status    string `json:"status"` // completed | failed
	Timestamp string `json:"timestamp"`
	FileSize  int64  `json:"file_size,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SnapshotManager captures single frames from camera streams by
// spawning the external encoder against the local RTSP endpoint.
type SnapshotManager struct {
	cfg     mediamtx.Config
	runner  *Runner
	bus     *events.Bus
	logger  *slog.Logger
	encoder string
}

// NewSnapshotManager creates a snapshot manager. The bus may be nil.
func NewSnapshotManager(cfg mediamtx.Config, bus *events.Bus) *SnapshotManager {
	return &SnapshotManager{
		cfg:     cfg,
		runner:  NewRunner(),
		bus:     bus,
		logger:  logging.GetLogger("snapshots"),
		encoder: "ffmpeg",
	}
}

// TakeSnapshot captures one frame from the device's stream. A missing
// filename is generated as <stream>_snapshot_<YYYY-MM-DD_HH-MM-SS>.jpg.
func (m *SnapshotManager) TakeSnapshot(ctx context.Context, devicePath, filename string) *SnapshotResult {
	now := time.Now()
	stream := camera.StreamNameForDevice(devicePath)
	if filename == "" {
		filename = fmt.Sprintf("%s_snapshot_%s.jpg", stream, now.Format("2006-01-02_15-04-05"))
	}

	result := &SnapshotResult{
		Device:    devicePath,
		Filename:  filename,
		Timestamp: now.Format(time.RFC3339),
	}

	if err := os.MkdirAll(m.cfg.SnapshotsPath, 0o755); err != nil {
		return m.fail(result, fmt.Sprintf("cannot create snapshots directory: %v", err))
	}

	filePath := filepath.Join(m.cfg.SnapshotsPath, filename)
	rtspURL := m.cfg.RTSPURL(camera.PathNameForDevice(devicePath))

	// Overwrite, TCP transport with a 5 s socket timeout, one frame at
	// high quality.
	run := m.runner.Run(ctx, m.encoder,
		"-y",
		"-rtsp_transport", "tcp",
		"-timeout", "5000000",
		"-i", rtspURL,
		"-frames:v", "1",
		"-q:v", "2",
		filePath,
	)

	if run.Failed() {
		msg := run.Stderr
		if run.TimedOut {
			msg = joinNonEmpty("snapshot capture timeout", cleanupDescription(run.Cleanup), msg)
		} else if msg == "" && run.Err != nil {
			msg = run.Err.Error()
		}
		return m.fail(result, msg)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return m.fail(result, fmt.Sprintf("encoder exited cleanly but produced no file: %v", err))
	}

	result.Status = "completed"
	result.FilePath = filePath
	result.FileSize = info.Size()
	metrics.ObserveSnapshot("completed")
	m.logger.Info("Snapshot captured",
		"device", devicePath, "filename", filename, "size", info.Size())
	m.publish(result)
	return result
}

func (m *SnapshotManager) fail(result *SnapshotResult, msg string) *SnapshotResult {
	result.Status = "failed"
	result.Error = msg
	metrics.ObserveSnapshot("failed")
	m.logger.Warn("Snapshot failed", "device", result.Device, "error", msg)
	m.publish(result)
	return result
}

func (m *SnapshotManager) publish(result *SnapshotResult) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.SnapshotTakenEvent{
		DevicePath: result.Device,
		Filename:   result.Filename,
		Status:     result.Status,
		Timestamp:  result.Timestamp,
	})
}
