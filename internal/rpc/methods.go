package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/camlink/camerad/internal/auth"
	"github.com/camlink/camerad/internal/camera"
	"github.com/camlink/camerad/internal/capture"
	"github.com/camlink/camerad/internal/mediamtx"
)

// DeviceSource is the slice of the discovery monitor the RPC layer
// reads.
type DeviceSource interface {
	GetAllDevices() []camera.Device
	GetDevice(path string) (camera.Device, bool)
	EffectiveCapability(path string) (*camera.Capability, string, camera.ProbeDiagnostics)
	GetStats() camera.MonitorStats
}

// StreamSource lists active media server paths.
type StreamSource interface {
	GetStreamList(ctx context.Context) ([]mediamtx.Stream, error)
}

// HealthSource exposes the supervisor's state snapshot.
type HealthSource interface {
	State() mediamtx.HealthState
}

// Snapshotter captures single frames.
type Snapshotter interface {
	TakeSnapshot(ctx context.Context, devicePath, filename string) *capture.SnapshotResult
}

// Recorder manages recording sessions.
type Recorder interface {
	StartRecording(ctx context.Context, devicePath string, duration int, format string) *capture.RecordingResult
	StopRecording(ctx context.Context, devicePath string) *capture.RecordingResult
	ActiveCount() int
}

// Deps are the collaborators the method handlers call into.
type Deps struct {
	Devices    DeviceSource
	Streams    StreamSource
	Health     HealthSource
	Snapshots  Snapshotter
	Recorder   Recorder
	Recordings *capture.ArtifactStore
	SnapStore  *capture.ArtifactStore
	Auth       *auth.Authenticator
	MediaMTX   mediamtx.Config
	Version    string
	StartTime  time.Time
}

type handlerFunc func(ctx context.Context, sess *session, params json.RawMessage) (any, *ErrorObject)

// methodEntry registers one RPC method with its minimum role. An empty
// role means unauthenticated access.
type methodEntry struct {
	handler handlerFunc
	minRole auth.Role
	version string
}

// buildRegistry assembles the method table.
func (s *Server) buildRegistry() map[string]methodEntry {
	return map[string]methodEntry{
		"authenticate":       {s.handleAuthenticate, "", "1.0"},
		"ping":               {s.handlePing, auth.RoleViewer, "1.0"},
		"get_camera_list":    {s.handleGetCameraList, auth.RoleViewer, "1.0"},
		"get_camera_status":  {s.handleGetCameraStatus, auth.RoleViewer, "1.0"},
		"get_streams":        {s.handleGetStreams, auth.RoleViewer, "1.0"},
		"list_recordings":    {s.handleListRecordings, auth.RoleViewer, "1.0"},
		"list_snapshots":     {s.handleListSnapshots, auth.RoleViewer, "1.0"},
		"get_recording_info": {s.handleGetRecordingInfo, auth.RoleViewer, "1.0"},
		"get_snapshot_info":  {s.handleGetSnapshotInfo, auth.RoleViewer, "1.0"},
		"take_snapshot":      {s.handleTakeSnapshot, auth.RoleOperator, "1.0"},
		"start_recording":    {s.handleStartRecording, auth.RoleOperator, "1.0"},
		"stop_recording":     {s.handleStopRecording, auth.RoleOperator, "1.0"},
		"delete_recording":   {s.handleDeleteRecording, auth.RoleOperator, "1.0"},
		"delete_snapshot":    {s.handleDeleteSnapshot, auth.RoleOperator, "1.0"},
		"get_metrics":        {s.handleGetMetrics, auth.RoleAdmin, "1.0"},
		"get_status":         {s.handleGetStatus, auth.RoleAdmin, "1.0"},
		"get_server_info":    {s.handleGetServerInfo, auth.RoleAdmin, "1.0"},
		"get_storage_info":   {s.handleGetStorageInfo, auth.RoleAdmin, "1.0"},
	}
}

func invalidParams(msg string) *ErrorObject {
	return &ErrorObject{Code: CodeInvalidParams, Message: msg}
}

func decodeParams[T any](params json.RawMessage) (*T, *ErrorObject) {
	var out T
	if len(params) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(params, &out); err != nil {
		return nil, invalidParams(fmt.Sprintf("malformed params: %v", err))
	}
	return &out, nil
}

type authenticateParams struct {
	Token    string `json:"token"`
	AuthType string `json:"auth_type,omitempty"`
}

func (s *Server) handleAuthenticate(_ context.Context, sess *session, params json.RawMessage) (any, *ErrorObject) {
	p, errObj := decodeParams[authenticateParams](params)
	if errObj != nil {
		return nil, errObj
	}
	if p.Token == "" {
		return nil, invalidParams("token is required")
	}

	result := s.deps.Auth.Authenticate(p.Token, auth.Method(p.AuthType))
	if !result.Authenticated {
		return map[string]any{
			"authenticated": false,
			"auth_method":   string(result.AuthMethod),
			"error_message": result.ErrorMessage,
		}, nil
	}

	sess.setPrincipal(result.Principal)
	resp := map[string]any{
		"authenticated": true,
		"auth_method":   string(result.AuthMethod),
		"user_id":       result.Principal.UserID,
		"role":          string(result.Principal.Role),
	}
	if !result.Principal.ExpiresAt.IsZero() {
		resp["expires_at"] = result.Principal.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return resp, nil
}

func (s *Server) handlePing(context.Context, *session, json.RawMessage) (any, *ErrorObject) {
	return "pong", nil
}

// cameraEntry is one device in get_camera_list.
type cameraEntry struct {
	Device     string            `json:"device"`
	Name       string            `json:"name"`
	Status     string            `json:"status"`
	Resolution string            `json:"resolution"`
	FPS        string            `json:"fps"`
	Streams    map[string]string `json:"streams"`
}

func (s *Server) handleGetCameraList(_ context.Context, _ *session, _ json.RawMessage) (any, *ErrorObject) {
	devices := s.deps.Devices.GetAllDevices()
	cameras := make([]cameraEntry, 0, len(devices))
	connected := 0
	for _, d := range devices {
		entry := cameraEntry{
			Device:  d.Path,
			Name:    d.Name,
			Status:  string(d.Status),
			Streams: map[string]string{},
		}
		meta := s.deriveMetadata(d.Path)
		entry.Resolution = meta.Resolution
		entry.FPS = meta.FPS
		if d.Status == camera.DeviceStatusConnected {
			connected++
			urls := s.deps.MediaMTX.URLsFor(camera.PathNameForDevice(d.Path))
			entry.Streams = map[string]string{
				"rtsp":   urls.RTSP,
				"webrtc": urls.WebRTC,
				"hls":    urls.HLS,
			}
		}
		cameras = append(cameras, entry)
	}
	return map[string]any{
		"cameras":   cameras,
		"total":     len(cameras),
		"connected": connected,
	}, nil
}

type deviceParams struct {
	Device string `json:"device"`
}

func (s *Server) handleGetCameraStatus(_ context.Context, _ *session, params json.RawMessage) (any, *ErrorObject) {
	p, errObj := decodeParams[deviceParams](params)
	if errObj != nil {
		return nil, errObj
	}
	if p.Device == "" {
		return nil, invalidParams("device is required")
	}
	d, ok := s.deps.Devices.GetDevice(p.Device)
	if !ok {
		return nil, invalidParams(fmt.Sprintf("unknown device %s", p.Device))
	}

	meta := s.deriveMetadata(d.Path)
	result := map[string]any{
		"device":              d.Path,
		"name":                d.Name,
		"status":              string(d.Status),
		"resolution":          meta.Resolution,
		"fps":                 meta.FPS,
		"metadata_source":     meta.Source,
		"metadata_validation": meta.Validation,
		"last_seen":           d.LastSeen.UTC().Format(time.RFC3339),
	}
	if d.Error != "" {
		result["error"] = d.Error
	}
	if capability, _, _ := s.deps.Devices.EffectiveCapability(d.Path); capability != nil {
		result["capabilities"] = capability
	}
	if d.Status == camera.DeviceStatusConnected {
		urls := s.deps.MediaMTX.URLsFor(camera.PathNameForDevice(d.Path))
		result["streams"] = map[string]string{
			"rtsp":   urls.RTSP,
			"webrtc": urls.WebRTC,
			"hls":    urls.HLS,
		}
	}
	return result, nil
}

func (s *Server) handleGetStreams(ctx context.Context, _ *session, _ json.RawMessage) (any, *ErrorObject) {
	streams, err := s.deps.Streams.GetStreamList(ctx)
	if err != nil {
		return nil, &ErrorObject{Code: CodeUpstreamFailed,
			Message: fmt.Sprintf("failed to list streams: %v", err)}
	}
	return map[string]any{"streams": streams, "total": len(streams)}, nil
}

type listParams struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func (s *Server) handleListRecordings(_ context.Context, _ *session, params json.RawMessage) (any, *ErrorObject) {
	return s.listArtifacts(s.deps.Recordings, params)
}

func (s *Server) handleListSnapshots(_ context.Context, _ *session, params json.RawMessage) (any, *ErrorObject) {
	return s.listArtifacts(s.deps.SnapStore, params)
}

func (s *Server) listArtifacts(store *capture.ArtifactStore, params json.RawMessage) (any, *ErrorObject) {
	p, errObj := decodeParams[listParams](params)
	if errObj != nil {
		return nil, errObj
	}
	page, err := store.List(p.Limit, p.Offset)
	if err != nil {
		return nil, &ErrorObject{Code: CodeInternalError, Message: err.Error()}
	}
	return page, nil
}

type filenameParams struct {
	Filename string `json:"filename"`
}

func (s *Server) handleGetRecordingInfo(_ context.Context, _ *session, params json.RawMessage) (any, *ErrorObject) {
	return s.artifactInfo(s.deps.Recordings, params)
}

func (s *Server) handleGetSnapshotInfo(_ context.Context, _ *session, params json.RawMessage) (any, *ErrorObject) {
	return s.artifactInfo(s.deps.SnapStore, params)
}

func (s *Server) artifactInfo(store *capture.ArtifactStore, params json.RawMessage) (any, *ErrorObject) {
	p, errObj := decodeParams[filenameParams](params)
	if errObj != nil {
		return nil, errObj
	}
	if p.Filename == "" {
		return nil, invalidParams("filename is required")
	}
	info, err := store.Info(p.Filename)
	if err != nil {
		return nil, artifactError(err)
	}
	return info, nil
}

func (s *Server) handleDeleteRecording(_ context.Context, _ *session, params json.RawMessage) (any, *ErrorObject) {
	return s.deleteArtifact(s.deps.Recordings, params)
}

func (s *Server) handleDeleteSnapshot(_ context.Context, _ *session, params json.RawMessage) (any, *ErrorObject) {
	return s.deleteArtifact(s.deps.SnapStore, params)
}

func (s *Server) deleteArtifact(store *capture.ArtifactStore, params json.RawMessage) (any, *ErrorObject) {
	p, errObj := decodeParams[filenameParams](params)
	if errObj != nil {
		return nil, errObj
	}
	if p.Filename == "" {
		return nil, invalidParams("filename is required")
	}
	if err := store.Delete(p.Filename); err != nil {
		return nil, artifactError(err)
	}
	return map[string]any{"filename": p.Filename, "deleted": true}, nil
}

func artifactError(err error) *ErrorObject {
	switch {
	case errors.Is(err, capture.ErrInvalidName):
		return invalidParams(err.Error())
	case errors.Is(err, capture.ErrArtifactNotFound):
		return invalidParams(err.Error())
	default:
		return &ErrorObject{Code: CodeInternalError, Message: err.Error()}
	}
}

type snapshotParams struct {
	Device   string `json:"device"`
	Filename string `json:"filename,omitempty"`
}

func (s *Server) handleTakeSnapshot(ctx context.Context, _ *session, params json.RawMessage) (any, *ErrorObject) {
	p, errObj := decodeParams[snapshotParams](params)
	if errObj != nil {
		return nil, errObj
	}
	if p.Device == "" {
		return nil, invalidParams("device is required")
	}
	return s.deps.Snapshots.TakeSnapshot(ctx, p.Device, p.Filename), nil
}

type startRecordingParams struct {
	Device   string `json:"device"`
	Duration int    `json:"duration,omitempty"`
	Format   string `json:"format,omitempty"`
}

func (s *Server) handleStartRecording(ctx context.Context, _ *session, params json.RawMessage) (any, *ErrorObject) {
	p, errObj := decodeParams[startRecordingParams](params)
	if errObj != nil {
		return nil, errObj
	}
	if p.Device == "" {
		return nil, invalidParams("device is required")
	}
	if p.Duration < 0 {
		return nil, invalidParams("duration must not be negative")
	}
	return s.deps.Recorder.StartRecording(ctx, p.Device, p.Duration, p.Format), nil
}

func (s *Server) handleStopRecording(ctx context.Context, _ *session, params json.RawMessage) (any, *ErrorObject) {
	p, errObj := decodeParams[deviceParams](params)
	if errObj != nil {
		return nil, errObj
	}
	if p.Device == "" {
		return nil, invalidParams("device is required")
	}
	return s.deps.Recorder.StopRecording(ctx, p.Device), nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *session, _ json.RawMessage) (any, *ErrorObject) {
	stats := s.deps.Devices.GetStats()
	health := s.deps.Health.State()
	system := map[string]any{"goroutines": runtime.NumGoroutine()}
	if vm, err := mem.VirtualMemory(); err == nil {
		system["memory_used_percent"] = vm.UsedPercent
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		system["cpu_percent"] = pct[0]
	}
	return map[string]any{
		"monitor":            stats,
		"mediamtx_health":    health,
		"system":             system,
		"active_connections": s.ActiveConnections(),
		"active_recordings":  s.deps.Recorder.ActiveCount(),
		"uptime_seconds":     time.Since(s.deps.StartTime).Seconds(),
	}, nil
}

func (s *Server) handleGetStatus(_ context.Context, _ *session, _ json.RawMessage) (any, *ErrorObject) {
	health := s.deps.Health.State()
	stats := s.deps.Devices.GetStats()
	overall := "healthy"
	if health.Status == mediamtx.HealthCircuitOpen || health.Status == mediamtx.HealthRecovering {
		overall = "degraded"
	}
	return map[string]any{
		"status": overall,
		"components": map[string]any{
			"mediamtx": string(health.Status),
			"camera_monitor": map[string]any{
				"known_devices":    stats.KnownDevices,
				"events_processed": stats.EventsProcessed,
			},
			"websocket_server": map[string]any{
				"active_connections": s.ActiveConnections(),
			},
		},
	}, nil
}

func (s *Server) handleGetServerInfo(_ context.Context, _ *session, _ json.RawMessage) (any, *ErrorObject) {
	info := map[string]any{
		"version":        s.deps.Version,
		"go_version":     runtime.Version(),
		"start_time":     s.deps.StartTime.UTC().Format(time.RFC3339),
		"uptime_seconds": time.Since(s.deps.StartTime).Seconds(),
	}
	if hi, err := host.Info(); err == nil {
		info["hostname"] = hi.Hostname
		info["os"] = hi.OS
		info["platform"] = hi.Platform
		info["kernel_version"] = hi.KernelVersion
	}
	if counts, err := cpu.Counts(true); err == nil {
		info["cpu_count"] = counts
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info["memory_total"] = vm.Total
		info["memory_used_percent"] = vm.UsedPercent
	}
	return info, nil
}

func (s *Server) handleGetStorageInfo(_ context.Context, _ *session, _ json.RawMessage) (any, *ErrorObject) {
	return map[string]any{
		"recordings": storageUsage(s.deps.MediaMTX.RecordingsPath),
		"snapshots":  storageUsage(s.deps.MediaMTX.SnapshotsPath),
	}, nil
}

func storageUsage(path string) map[string]any {
	out := map[string]any{"path": path}
	usage, err := disk.Usage(path)
	if err != nil {
		out["error"] = err.Error()
		return out
	}
	out["total_bytes"] = usage.Total
	out["free_bytes"] = usage.Free
	out["used_bytes"] = usage.Used
	out["used_percent"] = usage.UsedPercent

	var size int64
	var count int
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, infoErr := d.Info(); infoErr == nil {
			size += info.Size()
			count++
		}
		return nil
	})
	out["directory_size_bytes"] = size
	out["file_count"] = count
	return out
}

// deviceMetadata is the derived presentation of a device's capability
// confidence.
type deviceMetadata struct {
	Resolution  string
	FPS         string
	Source      string
	Validation  string
	Provisional bool
	Confirmed   bool
}

// deriveMetadata maps the monitor's effective capability onto the
// fields notifications and camera queries expose.
// defaultMetadata is the capability-free fallback: 1920x1080 at 30 fps
// with no validation confidence.
func defaultMetadata() deviceMetadata {
	return deviceMetadata{
		Resolution: "1920x1080",
		FPS:        "30",
		Source:     "default",
		Validation: "none",
	}
}

func (s *Server) deriveMetadata(devicePath string) deviceMetadata {
	meta := defaultMetadata()
	capability, source, diag := s.deps.Devices.EffectiveCapability(devicePath)
	if capability == nil {
		if diag.Attempted && diag.Error != "" {
			meta.Validation = "error"
		}
		return meta
	}
	if len(capability.Resolutions) > 0 {
		meta.Resolution = capability.Resolutions[0]
	}
	if len(capability.FrameRates) > 0 {
		meta.FPS = capability.FrameRates[0]
	}
	switch source {
	case "confirmed":
		meta.Source = "confirmed_capability"
		meta.Validation = "confirmed"
		meta.Confirmed = true
	case "provisional":
		meta.Source = "provisional_capability"
		meta.Validation = "provisional"
		meta.Provisional = true
	}
	return meta
}
