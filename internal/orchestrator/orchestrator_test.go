package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camlink/camerad/internal/camera"
	"github.com/camlink/camerad/internal/mediamtx"
)

type fakeComponent struct {
	name     string
	startErr error
	log      *[]string
	handlers []func(camera.DeviceEvent)
}

func (f *fakeComponent) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	*f.log = append(*f.log, "start:"+f.name)
	return nil
}

func (f *fakeComponent) Stop() { *f.log = append(*f.log, "stop:"+f.name) }

func (f *fakeComponent) AddEventHandler(h func(camera.DeviceEvent)) {
	f.handlers = append(f.handlers, h)
}

func (f *fakeComponent) emit(ev camera.DeviceEvent) {
	for _, h := range f.handlers {
		h(ev)
	}
}

type fakeVerifier struct{ err error }

func (f *fakeVerifier) HealthCheck(context.Context) (*mediamtx.HealthCheckResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &mediamtx.HealthCheckResult{Status: "healthy"}, nil
}

type fakePaths struct {
	mu        sync.Mutex
	ensured   []int
	deleted   []int
	ensureErr error
	deleteErr error
}

func (f *fakePaths) EnsurePath(_ context.Context, cameraID int, _ string) (mediamtx.StreamURLs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ensureErr != nil {
		return mediamtx.StreamURLs{}, f.ensureErr
	}
	f.ensured = append(f.ensured, cameraID)
	return mediamtx.StreamURLs{RTSP: "rtsp://127.0.0.1:8554/cam0"}, nil
}

func (f *fakePaths) DeletePath(_ context.Context, cameraID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, cameraID)
	return f.deleteErr
}

type broadcastRecord struct {
	device  string
	status  string
	streams map[string]string
}

type fakeRPC struct {
	fakeComponent
	mu         sync.Mutex
	broadcasts []broadcastRecord
}

func (f *fakeRPC) BroadcastCameraStatus(device, status, _ string, streams map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, broadcastRecord{device, status, streams})
}

func (f *fakeRPC) last() broadcastRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.broadcasts[len(f.broadcasts)-1]
}

func (f *fakeRPC) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.broadcasts)
}

func testOrchestrator(t *testing.T) (*Orchestrator, *fakeComponent, *fakeComponent, *fakeRPC, *fakePaths, *[]string) {
	t.Helper()
	log := &[]string{}
	monitor := &fakeComponent{name: "monitor", log: log}
	health := &fakeComponent{name: "health", log: log}
	rpc := &fakeRPC{fakeComponent: fakeComponent{name: "rpc", log: log}}
	paths := &fakePaths{}
	o := New(&fakeVerifier{}, paths, monitor, health, rpc)
	return o, monitor, health, rpc, paths, log
}

func TestStartupOrder(t *testing.T) {
	o, _, _, _, _, log := testOrchestrator(t)

	require.NoError(t, o.Start(context.Background()))
	assert.Equal(t, []string{"start:monitor", "start:health", "start:rpc"}, *log)

	o.Stop()
	assert.Equal(t, []string{
		"start:monitor", "start:health", "start:rpc",
		"stop:rpc", "stop:health", "stop:monitor",
	}, *log)
}

func TestStartupFailureTearsDownReverse(t *testing.T) {
	o, _, health, _, _, log := testOrchestrator(t)
	health.startErr = errors.New("bind failed")

	err := o.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health supervisor")
	assert.Equal(t, []string{"start:monitor", "stop:monitor"}, *log)
}

func TestStartupToleratesUnreachableMediaMTX(t *testing.T) {
	log := &[]string{}
	monitor := &fakeComponent{name: "monitor", log: log}
	health := &fakeComponent{name: "health", log: log}
	rpc := &fakeRPC{fakeComponent: fakeComponent{name: "rpc", log: log}}
	o := New(&fakeVerifier{err: errors.New("connection refused")}, &fakePaths{}, monitor, health, rpc)

	require.NoError(t, o.Start(context.Background()))
	o.Stop()
}

func TestConnectedEventProvisionsAndBroadcasts(t *testing.T) {
	o, monitor, _, rpc, paths, _ := testOrchestrator(t)
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop()

	monitor.emit(camera.DeviceEvent{
		Type:   camera.EventConnected,
		Device: camera.Device{Path: "/dev/video0", Name: "USB Camera", Status: camera.DeviceStatusConnected},
	})

	assert.Equal(t, []int{0}, paths.ensured)
	last := rpc.last()
	assert.Equal(t, "/dev/video0", last.device)
	assert.Equal(t, "CONNECTED", last.status)
	assert.Equal(t, "rtsp://127.0.0.1:8554/cam0", last.streams["rtsp"])
}

func TestProvisioningFailureStillBroadcasts(t *testing.T) {
	o, monitor, _, rpc, paths, _ := testOrchestrator(t)
	paths.ensureErr = errors.New("api down")
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop()

	monitor.emit(camera.DeviceEvent{
		Type:   camera.EventConnected,
		Device: camera.Device{Path: "/dev/video0", Status: camera.DeviceStatusConnected},
	})

	require.Equal(t, 1, rpc.count())
	last := rpc.last()
	assert.Equal(t, "CONNECTED", last.status)
	assert.Empty(t, last.streams)
}

func TestDisconnectedEventDeletesPath(t *testing.T) {
	o, monitor, _, rpc, paths, _ := testOrchestrator(t)
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop()

	monitor.emit(camera.DeviceEvent{
		Type:   camera.EventDisconnected,
		Device: camera.Device{Path: "/dev/video2", Status: camera.DeviceStatusDisconnected},
	})

	assert.Equal(t, []int{2}, paths.deleted)
	last := rpc.last()
	assert.Equal(t, "DISCONNECTED", last.status)
	assert.Empty(t, last.streams)
}

func TestDisconnectDeleteFailureIsLoggedNotFatal(t *testing.T) {
	o, monitor, _, rpc, paths, _ := testOrchestrator(t)
	paths.deleteErr = errors.New("not found")
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop()

	monitor.emit(camera.DeviceEvent{
		Type:   camera.EventDisconnected,
		Device: camera.Device{Path: "/dev/video0", Status: camera.DeviceStatusDisconnected},
	})
	assert.Equal(t, 1, rpc.count())
}

func TestStatusChangedBroadcasts(t *testing.T) {
	o, monitor, _, rpc, _, _ := testOrchestrator(t)
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop()

	monitor.emit(camera.DeviceEvent{
		Type:   camera.EventStatusChanged,
		Device: camera.Device{Path: "/dev/video0", Status: camera.DeviceStatusError},
	})

	last := rpc.last()
	assert.Equal(t, "ERROR", last.status)
}
