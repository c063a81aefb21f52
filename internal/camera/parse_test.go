package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleFormatsOutput = `
ioctl: VIDIOC_ENUM_FMT
	Type: Video Capture

	[0]: 'YUYV' (YUYV 4:2:2)
		Size: Discrete 1920x1080
			Interval: Discrete 0.033s (30.000 fps)
			Interval: Discrete 0.067s (15.000 fps)
		Size: Discrete 1280x720
			Interval: Discrete 0.033s (30.000 fps)
	[1]: 'MJPG' (Motion-JPEG, compressed)
		Size: Discrete 1920x1080
			Interval: Discrete 0.033s (30.000 fps)
`

const sampleInfoOutput = `
Driver Info:
	Driver name      : uvcvideo
	Card type        : HD Pro Webcam C920
	Bus info         : usb-0000:00:14.0-1
`

func TestParseDeviceNameAndDriver(t *testing.T) {
	assert.Equal(t, "HD Pro Webcam C920", parseDeviceName(sampleInfoOutput))
	assert.Equal(t, "uvcvideo", parseDriver(sampleInfoOutput))
}

func TestParseDeviceNameFallbackPatterns(t *testing.T) {
	assert.Equal(t, "USB Camera", parseDeviceName("Device name : USB Camera\n"))
	assert.Equal(t, "Cheap Cam", parseDeviceName("Card : Cheap Cam\n"))
	assert.Empty(t, parseDeviceName("nothing useful"))
}

func TestParseFormats(t *testing.T) {
	formats := parseFormats(sampleFormatsOutput)
	assert.Equal(t, []FormatInfo{
		{Code: "YUYV", Description: "YUYV 4:2:2"},
		{Code: "MJPG", Description: "Motion-JPEG, compressed"},
	}, formats)
}

func TestParseFormatsPlainPattern(t *testing.T) {
	formats := parseFormats("Pixel Format : 'H264'\n")
	assert.Equal(t, []FormatInfo{{Code: "H264"}}, formats)
}

func TestParseResolutionsSortedAndBounded(t *testing.T) {
	out := `
		Size: Discrete 640x480
		Size: Discrete 1920x1080
		Size: Discrete 1280x720
		Size: Discrete 8000x6000
		Size: Discrete 100x100
	`
	assert.Equal(t, []string{"1920x1080", "1280x720", "640x480"}, parseResolutions(out))
}

func TestParseResolutionsDeduplicates(t *testing.T) {
	out := "Size: Discrete 1280x720\nsome text 1280x720 again\n"
	assert.Equal(t, []string{"1280x720"}, parseResolutions(out))
}

func TestParseFrameRates(t *testing.T) {
	rates := parseFrameRates(sampleFormatsOutput)
	// 30 appears three times, 15 once; 30 also wins on priority.
	assert.Equal(t, []string{"30", "15"}, rates)
}

func TestParseFrameRatesBoundsAndGuards(t *testing.T) {
	assert.Empty(t, parseFrameRates("runs at 500 fps"))
	assert.Empty(t, parseFrameRates("0.5 fps slideshow"))
	assert.Empty(t, parseFrameRates("offset -30 fps"))
	assert.Equal(t, []string{"60"}, parseFrameRates("capture @60"))
	assert.Equal(t, []string{"30"}, parseFrameRates("Frame rate: 29.97"))
	assert.Equal(t, []string{"23.5"}, parseFrameRates("Frame rate: 23.5"))
}

func TestParseFrameRatesIntervalForms(t *testing.T) {
	assert.Equal(t, []string{"25"}, parseFrameRates("interval [1/25]"))
	assert.Equal(t, []string{"30"}, parseFrameRates("interval 1/30 s"))
}

func TestParseFrameRatesPriorityOrdering(t *testing.T) {
	// 90 is exotic, 60 is priority 1, 25 is priority 0.
	rates := parseFrameRates("90 fps 60 fps 25 fps")
	assert.Equal(t, []string{"25", "60", "90"}, rates)
}

func TestNormalizeRateIdempotent(t *testing.T) {
	for _, rate := range []string{"30", "23.5", "15"} {
		reparsed := parseFrameRates(rate + " fps")
		if assert.Len(t, reparsed, 1) {
			assert.Equal(t, rate, reparsed[0])
		}
	}
}
