package mediamtx

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/camlink/camerad/internal/events"
	"github.com/camlink/camerad/internal/logging"
	"github.com/camlink/camerad/internal/metrics"
)

// HealthStatus is the supervisor's view of MediaMTX.
type HealthStatus string

const (
	HealthHealthy     HealthStatus = "HEALTHY"
	HealthDegraded    HealthStatus = "DEGRADED"
	HealthCircuitOpen HealthStatus = "CIRCUIT_OPEN"
	HealthRecovering  HealthStatus = "RECOVERING"
)

// HealthState is a snapshot of supervisor state, exposed to get_status.
type HealthState struct {
	Status                    HealthStatus `json:"status"`
	ConsecutiveFailures       int          `json:"consecutive_failures"`
	RecoverySuccesses         int          `json:"recovery_successes"`
	CircuitBreakerActivations int          `json:"circuit_breaker_activations"`
	RecoveryCount             int          `json:"recovery_count"`
	LastCheck                 time.Time    `json:"last_check"`
	LastResponseTimeMS        float64      `json:"last_response_time_ms"`
	CurrentBackoffSeconds     float64      `json:"current_backoff_seconds"`
}

// HealthMonitor runs periodic liveness probes against MediaMTX with a
// circuit breaker. Recovery requires sustained success: a single good
// probe during RECOVERING never flips the state back to HEALTHY.
type HealthMonitor struct {
	client *Client
	cfg    Config
	bus    *events.Bus
	logger *slog.Logger
	jitter *rand.Rand

	mu           sync.Mutex
	state        HealthState
	circuitSince time.Time
	running      bool
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewHealthMonitor creates a supervisor for the given client. The bus
// may be nil in tests.
func NewHealthMonitor(client *Client, bus *events.Bus) *HealthMonitor {
	return &HealthMonitor{
		client: client,
		cfg:    client.Config(),
		bus:    bus,
		logger: logging.GetLogger("health"),
		jitter: rand.New(rand.NewSource(time.Now().UnixNano())),
		state:  HealthState{Status: HealthHealthy},
	}
}

// Start launches the probe loop.
func (h *HealthMonitor) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.running = true
	h.done = make(chan struct{})
	go h.loop(runCtx)
	h.logger.Info("Health monitor started",
		"interval", h.cfg.HealthCheckInterval,
		"failure_threshold", h.cfg.HealthFailureThreshold)
	return nil
}

// Stop cancels the probe loop and waits for it to exit.
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	cancel := h.cancel
	done := h.done
	h.mu.Unlock()

	cancel()
	<-done
	h.logger.Info("Health monitor stopped")
}

// State returns a snapshot of the current health state.
func (h *HealthMonitor) State() HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// IsHealthy reports whether the upstream is usable (not circuit-open).
func (h *HealthMonitor) IsHealthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Status == HealthHealthy || h.state.Status == HealthDegraded
}

func (h *HealthMonitor) loop(ctx context.Context) {
	defer close(h.done)
	for {
		interval := h.nextInterval()
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		result, err := h.client.HealthCheck(ctx)
		if ctx.Err() != nil {
			return
		}
		h.Observe(result, err)
	}
}

// nextInterval computes the wait before the next probe. In
// CIRCUIT_OPEN the probe spacing backs off exponentially with jitter.
func (h *HealthMonitor) nextInterval() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	base := h.cfg.HealthCheckInterval
	interval := base
	if h.state.Status == HealthCircuitOpen {
		backoff := base * math.Pow(h.cfg.BackoffBaseMultiplier, float64(h.state.ConsecutiveFailures))
		interval = math.Min(h.cfg.MaxBackoffInterval, backoff)
	}
	lo, hi := h.cfg.BackoffJitterRange[0], h.cfg.BackoffJitterRange[1]
	interval *= lo + (hi-lo)*h.jitter.Float64()
	h.state.CurrentBackoffSeconds = interval
	return time.Duration(interval * float64(time.Second))
}

// Observe folds one probe outcome into the state machine. Exported so
// tests can drive the breaker without the timing loop.
func (h *HealthMonitor) Observe(result *HealthCheckResult, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.state.LastCheck = time.Now()
	if result != nil {
		h.state.LastResponseTimeMS = result.ResponseTimeMS
		metrics.ObserveHealthCheck(result.ResponseTimeMS / 1000)
	}

	if err == nil {
		h.observeSuccess()
	} else {
		h.observeFailure(err)
	}
}

// observeSuccess handles a successful probe. Caller holds the mutex.
func (h *HealthMonitor) observeSuccess() {
	switch h.state.Status {
	case HealthHealthy:
	case HealthDegraded:
		h.state.ConsecutiveFailures = 0
		h.transition(HealthHealthy, "probe succeeded")
	case HealthCircuitOpen:
		// First success after the open window starts recovery; it does
		// not count as confirmation by itself until the window elapsed.
		if time.Since(h.circuitSince).Seconds() >= h.cfg.CircuitBreakerTimeout {
			h.state.RecoverySuccesses = 1
			h.transition(HealthRecovering, "circuit breaker timeout elapsed")
		}
	case HealthRecovering:
		h.state.RecoverySuccesses++
		if h.state.RecoverySuccesses >= h.cfg.RecoveryConfirmationThreshold {
			h.state.ConsecutiveFailures = 0
			h.state.RecoverySuccesses = 0
			h.state.RecoveryCount++
			h.transition(HealthHealthy, "recovery confirmed")
		}
	}
}

// observeFailure handles a failed probe. Caller holds the mutex.
func (h *HealthMonitor) observeFailure(err error) {
	switch h.state.Status {
	case HealthHealthy, HealthDegraded:
		h.state.ConsecutiveFailures++
		if h.state.ConsecutiveFailures >= h.cfg.HealthFailureThreshold {
			h.state.CircuitBreakerActivations++
			h.circuitSince = time.Now()
			metrics.CircuitBreakerOpened()
			h.transition(HealthCircuitOpen, err.Error())
		} else if h.state.Status == HealthHealthy {
			h.transition(HealthDegraded, err.Error())
		}
	case HealthCircuitOpen:
		h.state.ConsecutiveFailures++
	case HealthRecovering:
		// Anti-flapping: reset confirmation progress, stay RECOVERING.
		h.state.RecoverySuccesses = 0
		h.logger.Warn("Probe failed during recovery, confirmation reset",
			"error", err)
	}
}

// transition logs a state change once and publishes a health event.
// Caller holds the mutex.
func (h *HealthMonitor) transition(to HealthStatus, detail string) {
	from := h.state.Status
	if from == to {
		return
	}
	h.state.Status = to
	metrics.SetHealthState(string(to))
	h.logger.Info("Health state changed",
		"from", from, "to", to,
		"consecutive_failures", h.state.ConsecutiveFailures,
		"detail", detail)

	if h.bus != nil {
		h.bus.Publish(events.MediaMTXHealthEvent{
			State:     string(to),
			Healthy:   to == HealthHealthy || to == HealthDegraded,
			Detail:    detail,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}
