// Package metrics provides Prometheus metrics for the camera service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	devicesConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "camerad",
		Subsystem: "camera",
		Name:      "devices_connected",
		Help:      "Number of currently connected capture devices",
	})

	probesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camerad",
		Subsystem: "camera",
		Name:      "probes_total",
		Help:      "Capability probes by outcome",
	}, []string{"result"})

	capabilityConfirmations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "camerad",
		Subsystem: "camera",
		Name:      "capability_confirmations_total",
		Help:      "Capability state promotions to confirmed",
	})

	mediamtxHealthState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "camerad",
		Subsystem: "mediamtx",
		Name:      "health_state",
		Help:      "Health supervisor state (0=healthy 1=degraded 2=circuit_open 3=recovering)",
	})

	circuitActivations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "camerad",
		Subsystem: "mediamtx",
		Name:      "circuit_breaker_activations_total",
		Help:      "Circuit breaker activations",
	})

	healthCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "camerad",
		Subsystem: "mediamtx",
		Name:      "health_check_duration_seconds",
		Help:      "MediaMTX health probe latency",
		Buckets:   prometheus.DefBuckets,
	})

	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "camerad",
		Subsystem: "rpc",
		Name:      "active_connections",
		Help:      "Connected WebSocket clients",
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camerad",
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "RPC requests by method and outcome",
	}, []string{"method", "outcome"})

	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "camerad",
		Subsystem: "rpc",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter",
	})

	snapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camerad",
		Subsystem: "capture",
		Name:      "snapshots_total",
		Help:      "Snapshot attempts by status",
	}, []string{"status"})

	recordingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camerad",
		Subsystem: "capture",
		Name:      "recordings_total",
		Help:      "Recording starts and stops by status",
	}, []string{"status"})

	recordingsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "camerad",
		Subsystem: "capture",
		Name:      "recordings_active",
		Help:      "Recording sessions currently active",
	})
)

// SetDevicesConnected records the current connected-device count.
func SetDevicesConnected(n int) { devicesConnected.Set(float64(n)) }

// ObserveProbe counts one capability probe outcome ("success",
// "timeout", "process_error", "parse_error").
func ObserveProbe(result string) { probesTotal.WithLabelValues(result).Inc() }

// CapabilityConfirmed counts one provisional-to-confirmed promotion.
func CapabilityConfirmed() { capabilityConfirmations.Inc() }

// SetHealthState records the supervisor state as an enum gauge.
func SetHealthState(state string) {
	var v float64
	switch state {
	case "DEGRADED":
		v = 1
	case "CIRCUIT_OPEN":
		v = 2
	case "RECOVERING":
		v = 3
	}
	mediamtxHealthState.Set(v)
}

// CircuitBreakerOpened counts one breaker activation.
func CircuitBreakerOpened() { circuitActivations.Inc() }

// ObserveHealthCheck records one probe latency in seconds.
func ObserveHealthCheck(seconds float64) { healthCheckDuration.Observe(seconds) }

// SetActiveConnections records the WebSocket client count.
func SetActiveConnections(n int) { activeConnections.Set(float64(n)) }

// ObserveRequest counts one RPC request ("ok" or "error").
func ObserveRequest(method, outcome string) {
	requestsTotal.WithLabelValues(method, outcome).Inc()
}

// RateLimited counts one rejected request.
func RateLimited() { rateLimitedTotal.Inc() }

// ObserveSnapshot counts one snapshot attempt by status.
func ObserveSnapshot(status string) { snapshotsTotal.WithLabelValues(status).Inc() }

// ObserveRecording counts one recording event by status.
func ObserveRecording(status string) { recordingsTotal.WithLabelValues(status).Inc() }

// SetRecordingsActive records the live session count.
func SetRecordingsActive(n int) { recordingsActive.Set(float64(n)) }
