package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamNameForDevice(t *testing.T) {
	assert.Equal(t, "camera0", StreamNameForDevice("/dev/video0"))
	assert.Equal(t, "camera12", StreamNameForDevice("/dev/video12"))
	// Terminal digit run fallback.
	assert.Equal(t, "camera3", StreamNameForDevice("/dev/custom_cam3"))
	// Hash fallback for paths with no digits is stable.
	first := StreamNameForDevice("/dev/weird")
	assert.Equal(t, first, StreamNameForDevice("/dev/weird"))
	assert.Regexp(t, `^camera_\d{3}$`, first)
}

func TestCameraIDAndPathName(t *testing.T) {
	assert.Equal(t, 0, CameraIDForDevice("/dev/video0"))
	assert.Equal(t, 7, CameraIDForDevice("/dev/video7"))
	assert.Equal(t, "cam0", PathNameForID(0))
	assert.Equal(t, "cam7", PathNameForDevice("/dev/video7"))
}

func TestDeviceNumForPath(t *testing.T) {
	assert.Equal(t, 4, DeviceNumForPath("/dev/video4"))
	assert.Equal(t, -1, DeviceNumForPath("/dev/weird"))
}
