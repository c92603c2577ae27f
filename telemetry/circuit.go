package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itsneelabh/agentcontracts/core"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"

	// CircuitDisabled is reported by a nil breaker.
	CircuitDisabled CircuitState = "disabled"
)

// CircuitConfig configures the breaker that sits in front of the collector.
type CircuitConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled" env:"LOGFIRE_CIRCUIT_ENABLED"`
	MaxFailures  int           `json:"max_failures" yaml:"max_failures" env:"LOGFIRE_CIRCUIT_MAX_FAILURES"`
	RecoveryTime time.Duration `json:"recovery_time" yaml:"recovery_time" env:"LOGFIRE_CIRCUIT_RECOVERY_TIME"`
	HalfOpenMax  int           `json:"half_open_max" yaml:"half_open_max" env:"LOGFIRE_CIRCUIT_HALF_OPEN_MAX"`
}

// CircuitBreaker stops sending batches to a collector that keeps failing.
// While open, batches are dropped without a network call; after
// RecoveryTime a limited number of probe sends are let through and enough
// successes close it again.
//
// A nil *CircuitBreaker is valid and always allows.
type CircuitBreaker struct {
	config CircuitConfig
	logger *TelemetryLogger
	now    func() time.Time

	state        atomic.Value // CircuitState
	failures     atomic.Int64
	probes       atomic.Int64
	probeSuccess atomic.Int64
	openedAt     atomic.Int64 // unix nanos

	mu sync.Mutex
}

// NewCircuitBreaker returns nil when the config is disabled.
func NewCircuitBreaker(config CircuitConfig, logger *TelemetryLogger) *CircuitBreaker {
	if !config.Enabled {
		return nil
	}
	if config.MaxFailures <= 0 {
		config.MaxFailures = 10
	}
	if config.RecoveryTime <= 0 {
		config.RecoveryTime = 30 * time.Second
	}
	if config.HalfOpenMax <= 0 {
		config.HalfOpenMax = 3
	}
	if logger == nil {
		logger = GetLogger()
	}

	cb := &CircuitBreaker{config: config, logger: logger, now: time.Now}
	cb.state.Store(CircuitClosed)
	return cb
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	if cb == nil {
		return CircuitDisabled
	}
	return cb.state.Load().(CircuitState)
}

// Allow reports whether a send may proceed. In half-open state each allowed
// call counts as a probe.
func (cb *CircuitBreaker) Allow() bool {
	if cb == nil {
		return true
	}

	switch cb.State() {
	case CircuitOpen:
		opened := time.Unix(0, cb.openedAt.Load())
		if cb.now().Sub(opened) < cb.config.RecoveryTime {
			return false
		}
		cb.mu.Lock()
		if cb.State() == CircuitOpen {
			cb.state.Store(CircuitHalfOpen)
			cb.probes.Store(0)
			cb.probeSuccess.Store(0)
			cb.logger.Info("Collector circuit entering HALF-OPEN state", map[string]interface{}{
				"recovery_wait": cb.config.RecoveryTime.String(),
				"max_probes":    cb.config.HalfOpenMax,
				"action":        "Probing collector with limited batches",
			})
		}
		cb.mu.Unlock()
		return cb.Allow()

	case CircuitHalfOpen:
		if cb.probes.Add(1) > int64(cb.config.HalfOpenMax) {
			cb.probes.Add(-1)
			return false
		}
		return true

	default:
		return true
	}
}

// RecordSuccess resets the failure count, or counts a successful probe.
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}

	if cb.State() != CircuitHalfOpen {
		cb.failures.Store(0)
		return
	}

	if cb.probeSuccess.Add(1) < int64(cb.config.HalfOpenMax) {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.State() != CircuitHalfOpen {
		return
	}
	cb.state.Store(CircuitClosed)
	cb.failures.Store(0)
	cb.logger.Info("Collector circuit CLOSED", map[string]interface{}{
		"probes": cb.config.HalfOpenMax,
		"impact": "Batches are sent again",
	})
}

// RecordFailure counts a failed send. A failed probe reopens the circuit at
// once; otherwise MaxFailures consecutive failures open it.
func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil {
		return
	}

	if cb.State() == CircuitHalfOpen {
		cb.trip("probe failed")
		return
	}

	failures := cb.failures.Add(1)
	if failures >= int64(cb.config.MaxFailures) {
		cb.trip(fmt.Sprintf("%d consecutive failures", failures))
		return
	}
	if failures == int64(cb.config.MaxFailures)-1 && cb.config.MaxFailures > 2 {
		cb.logger.Warn("Collector circuit one failure from opening", map[string]interface{}{
			"failure_count": failures,
			"max_failures":  cb.config.MaxFailures,
			"impact":        "Next failure will drop batches until recovery",
		})
	}
}

func (cb *CircuitBreaker) trip(reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	previous := cb.State()
	if previous == CircuitOpen {
		return
	}
	cb.state.Store(CircuitOpen)
	cb.openedAt.Store(cb.now().UnixNano())
	cb.logger.Warn("Collector circuit OPENED - batches will be dropped", map[string]interface{}{
		"previous_state": string(previous),
		"reason":         reason,
		"recovery_time":  cb.config.RecoveryTime.String(),
		"action":         "Check collector health at the configured endpoint",
	})
}

// Reset closes the circuit and clears all counters.
func (cb *CircuitBreaker) Reset() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state.Store(CircuitClosed)
	cb.failures.Store(0)
	cb.probes.Store(0)
	cb.probeSuccess.Store(0)
	cb.openedAt.Store(0)
}

// Execute runs fn if the circuit allows it and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.Allow() {
		return fmt.Errorf("collector circuit %s: %w", cb.State(), core.ErrCircuitOpen)
	}
	if err := fn(ctx); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}
