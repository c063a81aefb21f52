package mediamtx

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/camlink/camerad/internal/camera"
	"github.com/camlink/camerad/internal/logging"
)

// PathManager provisions and deletes camera stream paths. It keeps no
// persistent local state: the media server is the source of truth and
// status is re-read on every operation.
type PathManager struct {
	client *Client
	logger *slog.Logger
}

// NewPathManager creates a path manager over the given client.
func NewPathManager(client *Client) *PathManager {
	return &PathManager{
		client: client,
		logger: logging.GetLogger("paths"),
	}
}

// EnsurePath idempotently provisions the path cam<cameraID> publishing
// the capture device over RTSP. Returns the transport URLs.
func (pm *PathManager) EnsurePath(ctx context.Context, cameraID int, devicePath string) (StreamURLs, error) {
	// The path waits for a local RTSP publisher backed by the capture
	// device; MediaMTX does not open the device itself.
	name := camera.PathNameForID(cameraID)
	urls, err := pm.client.CreateStream(ctx, name, "publisher", &PathConf{
		SourceOnDemand: false,
	})
	if err != nil {
		return StreamURLs{}, fmt.Errorf("ensure path %s: %w", name, err)
	}
	pm.logger.Debug("Path ensured", "path", name, "device", devicePath)
	return urls, nil
}

// DeletePath removes the path for a camera. Missing paths are success.
func (pm *PathManager) DeletePath(ctx context.Context, cameraID int) error {
	name := camera.PathNameForID(cameraID)
	if err := pm.client.DeleteStream(ctx, name); err != nil {
		return fmt.Errorf("delete path %s: %w", name, err)
	}
	return nil
}

// PathStatus re-reads the runtime state of a camera's path.
func (pm *PathManager) PathStatus(ctx context.Context, cameraID int) (*PathInfo, error) {
	return pm.client.GetStreamStatus(ctx, camera.PathNameForID(cameraID))
}

// URLsFor returns the transport URLs for a camera id without touching
// the server.
func (pm *PathManager) URLsFor(cameraID int) StreamURLs {
	return pm.client.Config().URLsFor(camera.PathNameForID(cameraID))
}
