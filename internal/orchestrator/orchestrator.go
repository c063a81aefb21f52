// Package orchestrator wires the service components together and
// drives their lifecycle.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/camlink/camerad/internal/camera"
	"github.com/camlink/camerad/internal/logging"
	"github.com/camlink/camerad/internal/mediamtx"
)

// DeviceMonitor is the slice of the discovery monitor the orchestrator
// drives.
type DeviceMonitor interface {
	Start(ctx context.Context) error
	Stop()
	AddEventHandler(handler func(camera.DeviceEvent))
}

// HealthSupervisor runs MediaMTX liveness probes.
type HealthSupervisor interface {
	Start(ctx context.Context) error
	Stop()
}

// PathProvisioner provisions and removes camera paths.
type PathProvisioner interface {
	EnsurePath(ctx context.Context, cameraID int, devicePath string) (mediamtx.StreamURLs, error)
	DeletePath(ctx context.Context, cameraID int) error
}

// SessionServer is the JSON-RPC control channel.
type SessionServer interface {
	Start(ctx context.Context) error
	Stop()
	BroadcastCameraStatus(devicePath, status, name string, streams map[string]string)
}

// Verifier checks the media client is reachable at startup. Startup
// proceeds even when the first check fails; the supervisor will drive
// recovery.
type Verifier interface {
	HealthCheck(ctx context.Context) (*mediamtx.HealthCheckResult, error)
}

// Orchestrator owns component startup order and bridges device events
// to path provisioning and notifications.
type Orchestrator struct {
	client  Verifier
	paths   PathProvisioner
	monitor DeviceMonitor
	health  HealthSupervisor
	rpc     SessionServer
	logger  *slog.Logger

	started []func()
	running bool
}

// New creates an orchestrator over the given components.
func New(client Verifier, paths PathProvisioner, monitor DeviceMonitor, health HealthSupervisor, rpc SessionServer) *Orchestrator {
	return &Orchestrator{
		client:  client,
		paths:   paths,
		monitor: monitor,
		health:  health,
		rpc:     rpc,
		logger:  logging.GetLogger("orchestrator"),
	}
}

// Start brings components up in dependency order. Any failure tears
// down what already started, in reverse, and returns the error.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.running {
		return nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	result, err := o.client.HealthCheck(checkCtx)
	cancel()
	if err != nil {
		o.logger.Warn("MediaMTX not reachable at startup, continuing", "error", err)
	} else {
		o.logger.Info("MediaMTX reachable", "response_time_ms", result.ResponseTimeMS)
	}

	o.monitor.AddEventHandler(o.handleDeviceEvent)

	steps := []struct {
		name  string
		start func(context.Context) error
		stop  func()
	}{
		{"camera monitor", o.monitor.Start, o.monitor.Stop},
		{"health supervisor", o.health.Start, o.health.Stop},
		{"rpc server", o.rpc.Start, o.rpc.Stop},
	}
	for _, step := range steps {
		if err := step.start(ctx); err != nil {
			o.logger.Error("Component failed to start", "component", step.name, "error", err)
			o.teardown()
			return fmt.Errorf("start %s: %w", step.name, err)
		}
		o.started = append(o.started, step.stop)
		o.logger.Info("Component started", "component", step.name)
	}
	o.running = true
	return nil
}

// Stop tears components down in reverse start order.
func (o *Orchestrator) Stop() {
	if !o.running && len(o.started) == 0 {
		return
	}
	o.running = false
	o.teardown()
	o.logger.Info("Service stopped")
}

func (o *Orchestrator) teardown() {
	for i := len(o.started) - 1; i >= 0; i-- {
		o.started[i]()
	}
	o.started = nil
}

// handleDeviceEvent bridges monitor events to path provisioning and
// client notifications. Provisioning failure never suppresses the
// notification.
func (o *Orchestrator) handleDeviceEvent(ev camera.DeviceEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cameraID := camera.CameraIDForDevice(ev.Device.Path)
	switch ev.Type {
	case camera.EventConnected:
		o.handleConnected(ctx, cameraID, ev.Device)
	case camera.EventDisconnected:
		o.handleDisconnected(ctx, cameraID, ev.Device)
	case camera.EventStatusChanged:
		o.rpc.BroadcastCameraStatus(ev.Device.Path, string(ev.Device.Status), ev.Device.Name, nil)
	}
}

func (o *Orchestrator) handleConnected(ctx context.Context, cameraID int, device camera.Device) {
	urls, err := o.paths.EnsurePath(ctx, cameraID, device.Path)
	streams := map[string]string{}
	if err != nil {
		o.logger.Warn("Path provisioning failed",
			"device", device.Path, "camera_id", cameraID, "error", err)
	} else {
		streams = map[string]string{
			"rtsp":   urls.RTSP,
			"webrtc": urls.WebRTC,
			"hls":    urls.HLS,
		}
	}
	o.rpc.BroadcastCameraStatus(device.Path, string(camera.DeviceStatusConnected), device.Name, streams)
}

func (o *Orchestrator) handleDisconnected(ctx context.Context, cameraID int, device camera.Device) {
	if err := o.paths.DeletePath(ctx, cameraID); err != nil {
		o.logger.Warn("Path deletion failed",
			"device", device.Path, "camera_id", cameraID, "error", err)
	}
	o.rpc.BroadcastCameraStatus(device.Path, string(camera.DeviceStatusDisconnected), device.Name, map[string]string{})
}
