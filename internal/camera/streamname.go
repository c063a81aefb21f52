package camera

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
)

var (
	videoPathRe   = regexp.MustCompile(`^/dev/video(\d+)$`)
	trailingNumRe = regexp.MustCompile(`(\d+)$`)
)

// StreamNameForDevice maps a device path to its stream name.
// /dev/videoN maps to cameraN. Nonstandard paths fall back to any
// terminal digit run, then to a hash of the path mod 1000.
func StreamNameForDevice(devicePath string) string {
	if m := videoPathRe.FindStringSubmatch(devicePath); m != nil {
		return "camera" + m[1]
	}
	if m := trailingNumRe.FindStringSubmatch(devicePath); m != nil {
		return "camera" + m[1]
	}
	h := fnv.New32a()
	h.Write([]byte(devicePath))
	return fmt.Sprintf("camera_%03d", h.Sum32()%1000)
}

// CameraIDForDevice derives the numeric camera id used for path names.
func CameraIDForDevice(devicePath string) int {
	if m := videoPathRe.FindStringSubmatch(devicePath); m != nil {
		id, _ := strconv.Atoi(m[1])
		return id
	}
	if m := trailingNumRe.FindStringSubmatch(devicePath); m != nil {
		id, _ := strconv.Atoi(m[1])
		return id
	}
	h := fnv.New32a()
	h.Write([]byte(devicePath))
	return int(h.Sum32() % 1000)
}

// PathNameForID maps a camera id to its MediaMTX path name.
func PathNameForID(cameraID int) string {
	return fmt.Sprintf("cam%d", cameraID)
}

// PathNameForDevice maps a device path directly to its MediaMTX path.
func PathNameForDevice(devicePath string) string {
	return PathNameForID(CameraIDForDevice(devicePath))
}

// DeviceNumForPath extracts the numeric index from /dev/videoN paths.
// Returns -1 for nonstandard paths.
func DeviceNumForPath(devicePath string) int {
	if m := videoPathRe.FindStringSubmatch(devicePath); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return -1
}
