package rpc

// Re-homed from the teacher's internal/elevator/circuit_breaker.go: same
// three-state breaker (closed/open/half-open), now keyed by peer node
// identity and reporting its transitions through this system's telemetry
// instead of protecting a local motor operation.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/slavakukuyev/elevator-fleet/internal/metrics"
)

// CircuitBreakerState is the state of a CircuitBreaker.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker protects one peer's RPC endpoint from repeated failed
// calls, identified by the peer's node name for logging and metrics.
type CircuitBreaker struct {
	peer   string
	logger *slog.Logger

	mu           sync.RWMutex
	state        CircuitBreakerState
	failureCount int
	successCount int
	nextRetry    time.Time

	maxFailures   int
	resetTimeout  time.Duration
	halfOpenLimit int
}

// NewCircuitBreaker creates a breaker for peer that opens after maxFailures
// consecutive failures and probes again after resetTimeout.
func NewCircuitBreaker(peer string, maxFailures int, resetTimeout time.Duration, halfOpenLimit int, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	cb := &CircuitBreaker{
		peer:          peer,
		logger:        logger,
		state:         StateClosed,
		maxFailures:   maxFailures,
		resetTimeout:  resetTimeout,
		halfOpenLimit: halfOpenLimit,
	}
	metrics.RPCBreakerState.WithLabelValues(peer).Set(float64(StateClosed))
	return cb
}

// Execute runs operation if the breaker allows it.
func (cb *CircuitBreaker) Execute(ctx context.Context, operation func() error) error {
	if !cb.allowRequest() {
		return fmt.Errorf("circuit breaker open for peer %s: peer unreachable", cb.peer)
	}

	err := operation()
	if err != nil {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Now().After(cb.nextRetry) {
			cb.transitionLocked(StateHalfOpen)
			cb.successCount = 0
			return true
		}
		return false
	case StateHalfOpen:
		return cb.successCount < cb.halfOpenLimit
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.halfOpenLimit {
			cb.transitionLocked(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	if cb.state == StateHalfOpen {
		cb.transitionLocked(StateOpen)
		cb.nextRetry = time.Now().Add(cb.resetTimeout)
	} else if cb.failureCount >= cb.maxFailures {
		cb.transitionLocked(StateOpen)
		cb.nextRetry = time.Now().Add(cb.resetTimeout)
	}
}

// transitionLocked moves the breaker to next, logging and recording
// telemetry against this peer. Callers hold cb.mu.
func (cb *CircuitBreaker) transitionLocked(next CircuitBreakerState) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	metrics.RPCBreakerState.WithLabelValues(cb.peer).Set(float64(next))
	if next == StateOpen {
		metrics.RPCBreakerTrips.WithLabelValues(cb.peer).Inc()
		cb.logger.Warn("circuit breaker tripped open",
			slog.String("peer", cb.peer), slog.String("from", prev.String()))
	} else {
		cb.logger.Info("circuit breaker transitioned",
			slog.String("peer", cb.peer), slog.String("from", prev.String()), slog.String("to", next.String()))
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}
