package camera

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	outputs map[string]string // keyed by first arg
	err     error
	block   bool
}

func (f *fakeExecutor) Execute(ctx context.Context, devicePath string, args ...string) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.outputs[args[0]], nil
}

type fakeChecker struct{ present map[string]bool }

func (f *fakeChecker) Exists(path string) bool { return f.present[path] }

func allPresent(paths ...string) *fakeChecker {
	m := make(map[string]bool)
	for _, p := range paths {
		m[p] = true
	}
	return &fakeChecker{present: m}
}

func TestProbeSuccess(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string]string{
		"--info":             sampleInfoOutput,
		"--list-formats-ext": sampleFormatsOutput,
	}}
	p := NewProberWith(exec, allPresent("/dev/video0"), time.Second)

	probe := p.Probe(context.Background(), "/dev/video0")
	assert.True(t, probe.Detected)
	assert.Equal(t, "HD Pro Webcam C920", probe.DeviceName)
	assert.Equal(t, "uvcvideo", probe.Driver)
	assert.Equal(t, []string{"YUYV", "MJPG"}, probe.FormatCodes())
	assert.Equal(t, []string{"1920x1080", "1280x720"}, probe.Resolutions)
	assert.Equal(t, []string{"30", "15"}, probe.FrameRates)
	assert.True(t, probe.Diagnostics.Accessible)
	assert.False(t, probe.Diagnostics.FallbackRates)
}

func TestProbeMissingDevice(t *testing.T) {
	p := NewProberWith(&fakeExecutor{}, allPresent(), time.Second)

	probe := p.Probe(context.Background(), "/dev/video9")
	assert.False(t, probe.Detected)
	assert.False(t, probe.Diagnostics.Accessible)
	assert.Equal(t, ProbeErrProcess, probe.Diagnostics.ErrorCode)
	// Fallback rates must not be synthesized for unreachable devices.
	assert.Empty(t, probe.FrameRates)
}

func TestProbeTimeout(t *testing.T) {
	p := NewProberWith(&fakeExecutor{block: true}, allPresent("/dev/video0"), 50*time.Millisecond)

	start := time.Now()
	probe := p.Probe(context.Background(), "/dev/video0")
	require.Less(t, time.Since(start), 2*time.Second)

	assert.False(t, probe.Detected)
	assert.Equal(t, ProbeErrTimeout, probe.Diagnostics.ErrorCode)
	assert.True(t, probe.Diagnostics.Attempted)
}

func TestProbeProcessError(t *testing.T) {
	p := NewProberWith(&fakeExecutor{err: errors.New("exit status 1")},
		allPresent("/dev/video0"), time.Second)

	probe := p.Probe(context.Background(), "/dev/video0")
	assert.False(t, probe.Detected)
	assert.Equal(t, ProbeErrProcess, probe.Diagnostics.ErrorCode)
	assert.Contains(t, probe.Diagnostics.Error, "exit status 1")
}

func TestProbeParseError(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string]string{
		"--info":             "garbage",
		"--list-formats-ext": "garbage",
	}}
	p := NewProberWith(exec, allPresent("/dev/video0"), time.Second)

	probe := p.Probe(context.Background(), "/dev/video0")
	assert.False(t, probe.Detected)
	assert.Equal(t, ProbeErrParse, probe.Diagnostics.ErrorCode)
}

func TestProbeFallbackRates(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string]string{
		"--info":             sampleInfoOutput,
		"--list-formats-ext": "[0]: 'YUYV' (YUYV 4:2:2)\n\tSize: Discrete 1280x720\n",
	}}
	p := NewProberWith(exec, allPresent("/dev/video0"), time.Second)

	probe := p.Probe(context.Background(), "/dev/video0")
	assert.True(t, probe.Detected)
	assert.True(t, probe.Diagnostics.FallbackRates)
	assert.Equal(t, []string{"30", "25", "24", "15", "10", "5"}, probe.FrameRates)
}
