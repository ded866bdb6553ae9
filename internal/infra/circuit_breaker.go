package infra

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig tunes a breaker. Zero values fall back to 1.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int           // consecutive failures that open the breaker
	SuccessThreshold int           // probe successes that close it again
	Cooldown         time.Duration // time spent open before probing
	MaxProbes        int           // concurrent calls allowed while half-open
}

// DefaultCircuitBreakerConfig returns the defaults used for order routing.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
		MaxProbes:        1,
	}
}

// CircuitBreaker stops calling a dependency after repeated failures.
// Safe for concurrent use.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
	probes    int
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.MaxProbes <= 0 {
		cfg.MaxProbes = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the breaker rejects it. isFailure decides which
// errors count against the breaker; nil counts every error. Errors that do
// not count are treated as a healthy round-trip.
func (cb *CircuitBreaker) Execute(fn func() error, isFailure func(error) bool) error {
	probe, ok := cb.acquire()
	if !ok {
		return ErrCircuitOpen
	}
	err := fn()
	cb.release(probe, err != nil && (isFailure == nil || isFailure(err)))
	return err
}

// acquire admits a call. While half-open only MaxProbes calls are in flight.
func (cb *CircuitBreaker) acquire() (probe bool, ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
			return false, false
		}
		cb.transition(BreakerHalfOpen)
	}
	if cb.state == BreakerHalfOpen {
		if cb.probes >= cb.cfg.MaxProbes {
			return false, false
		}
		cb.probes++
		return true, true
	}
	return false, true
}

func (cb *CircuitBreaker) release(probe, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probes--
	}
	switch {
	case failed && cb.state == BreakerHalfOpen:
		cb.transition(BreakerOpen)
	case failed:
		cb.failures++
		if cb.state == BreakerClosed && cb.failures >= cb.cfg.FailureThreshold {
			cb.transition(BreakerOpen)
		}
	case cb.state == BreakerHalfOpen && probe:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.transition(BreakerClosed)
		}
	case cb.state == BreakerClosed:
		cb.failures = 0
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to BreakerState) {
	from := cb.state
	cb.state = to
	cb.successes = 0
	switch to {
	case BreakerOpen:
		cb.openedAt = cb.now()
		slog.Warn("Circuit breaker opened",
			slog.String("name", cb.cfg.Name),
			slog.String("from", from.String()),
			slog.Int("failures", cb.failures))
	case BreakerHalfOpen:
		slog.Info("Circuit breaker probing", slog.String("name", cb.cfg.Name))
	case BreakerClosed:
		cb.failures = 0
		slog.Info("Circuit breaker closed", slog.String("name", cb.cfg.Name), slog.String("from", from.String()))
	}
}

// State returns the current state without advancing it.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probes = 0
	cb.transition(BreakerClosed)
}
