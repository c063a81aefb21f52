package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/camlink/camerad/internal/camera"
)

func TestFilterNotificationFields(t *testing.T) {
	params := map[string]any{
		"device":     "/dev/video0",
		"status":     "CONNECTED",
		"name":       "USB Camera",
		"resolution": "1920x1080",
		"fps":        "30",
		"streams":    map[string]string{"rtsp": "rtsp://127.0.0.1:8554/cam0"},
		"secret":     "leak",
		"raw_error":  "stack trace",
	}

	filtered := filterNotificationFields(NotifyCameraStatus, params)
	assert.Contains(t, filtered, "device")
	assert.Contains(t, filtered, "streams")
	assert.NotContains(t, filtered, "secret")
	assert.NotContains(t, filtered, "raw_error")
}

func TestFilterRecordingFields(t *testing.T) {
	filtered := filterNotificationFields(NotifyRecordingStatus, map[string]any{
		"device":   "/dev/video0",
		"status":   "STOPPED",
		"filename": "camera0_x.mp4",
		"duration": 12.5,
		"pid":      1234,
	})
	assert.Len(t, filtered, 4)
	assert.NotContains(t, filtered, "pid")
}

func TestFilterUnknownMethodPassesThrough(t *testing.T) {
	params := map[string]any{"anything": 1}
	assert.Equal(t, params, filterNotificationFields("custom_event", params))
}

func TestDisconnectedStatusUsesDefaultMetadata(t *testing.T) {
	s, _ := testServer(t)
	devices := s.deps.Devices.(*fakeDevices)
	devices.caps["/dev/video0"] = &camera.Capability{
		Resolutions: []string{"1280x720"},
		FrameRates:  []string{"60"},
	}
	devices.sources["/dev/video0"] = "confirmed"

	params := s.cameraStatusParams("/dev/video0", "DISCONNECTED", "USB Camera", nil)
	assert.Equal(t, "1920x1080", params["resolution"])
	assert.Equal(t, "30", params["fps"])
	assert.Equal(t, "default", params["metadata_source"])
	assert.Equal(t, false, params["metadata_confirmed"])

	params = s.cameraStatusParams("/dev/video0", "CONNECTED", "USB Camera", nil)
	assert.Equal(t, "1280x720", params["resolution"])
	assert.Equal(t, "confirmed_capability", params["metadata_source"])
}
