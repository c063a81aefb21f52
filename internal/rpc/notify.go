package rpc

import (
	"github.com/camlink/camerad/internal/camera"
)

// Notification methods pushed to clients.
const (
	NotifyCameraStatus    = "camera_status_update"
	NotifyRecordingStatus = "recording_status_update"
	NotifyServerShutdown  = "server_shutdown"
)

// allowedNotificationFields whitelists the params each notification may
// carry. Anything else is dropped at the boundary.
var allowedNotificationFields = map[string]map[string]struct{}{
	NotifyCameraStatus: fieldSet(
		"device", "status", "name", "resolution", "fps", "streams",
		"metadata_validation", "metadata_source",
		"metadata_provisional", "metadata_confirmed",
	),
	NotifyRecordingStatus: fieldSet(
		"device", "status", "filename", "duration",
	),
	NotifyServerShutdown: fieldSet("timestamp"),
}

func fieldSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// filterNotificationFields drops params not in the method's whitelist.
// Unknown methods pass through unchanged.
func filterNotificationFields(method string, params map[string]any) map[string]any {
	allowed, known := allowedNotificationFields[method]
	if !known {
		return params
	}
	filtered := make(map[string]any, len(params))
	for key, value := range params {
		if _, ok := allowed[key]; ok {
			filtered[key] = value
		}
	}
	return filtered
}

// cameraStatusParams builds a camera_status_update payload from the
// device state and derived metadata. Disconnected devices report the
// default metadata, never stale capability data.
func (s *Server) cameraStatusParams(devicePath, status, name string, streams map[string]string) map[string]any {
	meta := defaultMetadata()
	if status != string(camera.DeviceStatusDisconnected) {
		meta = s.deriveMetadata(devicePath)
	}
	if streams == nil {
		streams = map[string]string{}
	}
	return map[string]any{
		"device":               devicePath,
		"status":               status,
		"name":                 name,
		"resolution":           meta.Resolution,
		"fps":                  meta.FPS,
		"streams":              streams,
		"metadata_validation":  meta.Validation,
		"metadata_source":      meta.Source,
		"metadata_provisional": meta.Provisional,
		"metadata_confirmed":   meta.Confirmed,
	}
}

// BroadcastCameraStatus pushes a camera_status_update.
func (s *Server) BroadcastCameraStatus(devicePath, status, name string, streams map[string]string) {
	s.Broadcast(NotifyCameraStatus, s.cameraStatusParams(devicePath, status, name, streams))
}

// BroadcastRecordingStatus pushes a recording_status_update.
func (s *Server) BroadcastRecordingStatus(devicePath, status, filename string, duration float64) {
	s.Broadcast(NotifyRecordingStatus, map[string]any{
		"device":   devicePath,
		"status":   status,
		"filename": filename,
		"duration": duration,
	})
}
