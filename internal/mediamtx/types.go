// Package mediamtx contains the typed HTTP client for the MediaMTX
// configuration and query APIs, the circuit-breaker health monitor,
// and the idempotent path manager.
package mediamtx

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the MediaMTX connection settings.
type Config struct {
	Host           string
	APIPort        int
	RTSPPort       int
	WebRTCPort     int
	HLSPort        int
	RecordingsPath string
	SnapshotsPath  string

	HealthCheckInterval           float64 // seconds
	HealthFailureThreshold        int
	CircuitBreakerTimeout         float64 // seconds
	RecoveryConfirmationThreshold int
	BackoffBaseMultiplier         float64
	BackoffJitterRange            [2]float64
	MaxBackoffInterval            float64 // seconds
}

// DefaultConfig returns production defaults for a local MediaMTX.
func DefaultConfig() Config {
	return Config{
		Host:                          "127.0.0.1",
		APIPort:                       9997,
		RTSPPort:                      8554,
		WebRTCPort:                    8889,
		HLSPort:                       8888,
		RecordingsPath:                "/opt/camerad/recordings",
		SnapshotsPath:                 "/opt/camerad/snapshots",
		HealthCheckInterval:           5.0,
		HealthFailureThreshold:        3,
		CircuitBreakerTimeout:         60.0,
		RecoveryConfirmationThreshold: 3,
		BackoffBaseMultiplier:         2.0,
		BackoffJitterRange:            [2]float64{0.8, 1.2},
		MaxBackoffInterval:            60.0,
	}
}

// APIBaseURL returns the configuration API base URL.
func (c Config) APIBaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.APIPort)
}

// RTSPURL returns the RTSP URL for a path name.
func (c Config) RTSPURL(pathName string) string {
	return fmt.Sprintf("rtsp://%s:%d/%s", c.Host, c.RTSPPort, pathName)
}

// WebRTCURL returns the WebRTC URL for a path name.
func (c Config) WebRTCURL(pathName string) string {
	return fmt.Sprintf("http://%s:%d/%s", c.Host, c.WebRTCPort, pathName)
}

// HLSURL returns the HLS URL for a path name.
func (c Config) HLSURL(pathName string) string {
	return fmt.Sprintf("http://%s:%d/%s", c.Host, c.HLSPort, pathName)
}

// StreamURLs bundles the transport URLs published for one path.
type StreamURLs struct {
	RTSP   string `json:"rtsp"`
	WebRTC string `json:"webrtc"`
	HLS    string `json:"hls"`
}

// URLsFor builds all transport URLs for a path name.
func (c Config) URLsFor(pathName string) StreamURLs {
	return StreamURLs{
		RTSP:   c.RTSPURL(pathName),
		WebRTC: c.WebRTCURL(pathName),
		HLS:    c.HLSURL(pathName),
	}
}

// ErrNotFound is returned when MediaMTX reports 404 for a path query.
var ErrNotFound = errors.New("path not found")

// ConnectionError wraps transport failures talking to MediaMTX so the
// health supervisor can classify them.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mediamtx %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PathConf is the subset of MediaMTX path configuration this service
// manages.
type PathConf struct {
	Source                string `json:"source,omitempty"`
	SourceOnDemand        bool   `json:"sourceOnDemand,omitempty"`
	Record                bool   `json:"record"`
	RecordPath            string `json:"recordPath,omitempty"`
	RecordFormat          string `json:"recordFormat,omitempty"`
	RecordDeleteAfter     string `json:"recordDeleteAfter,omitempty"`
	RecordSegmentDuration string `json:"recordSegmentDuration,omitempty"`
}

// PathInfo is the runtime state MediaMTX reports for a path.
type PathInfo struct {
	Name   string `json:"name"`
	Source *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"source"`
	Ready     bool     `json:"ready"`
	Tracks    []string `json:"tracks"`
	BytesSent int64    `json:"bytesSent"`
	Readers   []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"readers"`
}

// PathList is the paginated response of /v3/paths/list.
type PathList struct {
	ItemCount int         `json:"itemCount"`
	PageCount int         `json:"pageCount"`
	Items     []*PathInfo `json:"items"`
}

// HealthCheckResult is the outcome of one liveness probe.
type HealthCheckResult struct {
	Status         string        `json:"status"`
	Version        string        `json:"version,omitempty"`
	Uptime         time.Duration `json:"-"`
	ResponseTimeMS float64       `json:"response_time_ms"`
}

// Stream is the client-facing summary of a path.
type Stream struct {
	Name      string `json:"name"`
	Source    string `json:"source"`
	Ready     bool   `json:"ready"`
	Readers   int    `json:"readers"`
	BytesSent int64  `json:"bytes_sent"`
}
