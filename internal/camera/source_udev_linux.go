//go:build linux && cgo

package camera

import (
	"context"
	"fmt"

	"github.com/jochenvg/go-udev"

	"github.com/camlink/camerad/internal/logging"
)

// UdevSource delivers video4linux kernel events over a netlink socket.
type UdevSource struct{}

// NewUdevSource creates a udev-backed event source.
func NewUdevSource() *UdevSource { return &UdevSource{} }

// Name identifies the source in logs.
func (s *UdevSource) Name() string { return "udev" }

// Events subscribes to the video4linux subsystem via netlink and
// translates udev device events into SourceEvents.
func (s *UdevSource) Events(ctx context.Context) (<-chan SourceEvent, error) {
	logger := logging.GetLogger("udev")

	u := udev.Udev{}
	mon := u.NewMonitorFromNetlink("udev")
	if mon == nil {
		return nil, fmt.Errorf("failed to create udev monitor")
	}
	mon.FilterAddMatchSubsystem("video4linux")

	deviceCh, errCh, err := mon.DeviceChan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get udev device channel: %w", err)
	}

	go func() {
		for err := range errCh {
			logger.Error("Udev monitor error", "error", err)
		}
	}()

	out := make(chan SourceEvent)
	go func() {
		defer close(out)
		logger.Info("Udev monitoring started for video4linux devices")
		for {
			select {
			case <-ctx.Done():
				logger.Info("Udev monitor stopped")
				return
			case dev, ok := <-deviceCh:
				if !ok {
					logger.Info("Udev device channel closed")
					return
				}
				node := dev.Devnode()
				action := dev.Action()
				if node == "" || action == "" {
					continue
				}
				select {
				case out <- SourceEvent{DevicePath: node, Action: action}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// DefaultEventSource returns the platform event source.
func DefaultEventSource() EventSource { return NewUdevSource() }
