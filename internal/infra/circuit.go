// Package infra holds the circuit breaker protecting the LLM endpoint.
package infra

import (
	"sync"
	"time"

	"github.com/unfazed-dev/genui/pkg/models"
)

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies this breaker in metrics and errors.
	Name string `yaml:"name"`

	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int `yaml:"failure_threshold"`

	// SuccessThreshold is the number of successes in half-open to close.
	SuccessThreshold int `yaml:"success_threshold"`

	// RecoveryTimeout is how long the circuit stays open before a
	// half-open probe is allowed.
	RecoveryTimeout time.Duration `yaml:"recovery_timeout"`

	// OnStateChange observes every transition.
	OnStateChange func(name string, from, to models.CircuitState) `yaml:"-"`
}

// CircuitBreaker implements a three-state breaker. All transitions are
// single-writer: CheckState, RecordSuccess, and RecordFailure serialize
// on one mutex.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu           sync.Mutex
	state        models.CircuitState
	failures     int
	successes    int
	recoveryAt   time.Time

	// now is replaceable for tests.
	now func() time.Time
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.Name == "" {
		config.Name = "default"
	}

	return &CircuitBreaker{
		config: config,
		state:  models.CircuitClosed,
		now:    time.Now,
	}
}

// CheckState gates a request about to be issued. In the open state it
// returns CircuitOpenError until the recovery deadline passes, at which
// point the breaker moves to half-open and admits the probe.
func (cb *CircuitBreaker) CheckState() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case models.CircuitOpen:
		if !cb.now().Before(cb.recoveryAt) {
			cb.transitionTo(models.CircuitHalfOpen)
			return nil
		}
		return &models.CircuitOpenError{Name: cb.config.Name, RecoveryTime: cb.recoveryAt}
	default:
		return nil
	}
}

// RecordSuccess books a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case models.CircuitClosed:
		cb.failures = 0
	case models.CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(models.CircuitClosed)
		}
	}
}

// RecordFailure books a failed request.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case models.CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.recoveryAt = cb.now().Add(cb.config.RecoveryTimeout)
			cb.transitionTo(models.CircuitOpen)
		}
	case models.CircuitHalfOpen:
		cb.recoveryAt = cb.now().Add(cb.config.RecoveryTimeout)
		cb.transitionTo(models.CircuitOpen)
	}
}

// transitionTo changes state and resets both counters. Must be called
// with the lock held.
func (cb *CircuitBreaker) transitionTo(newState models.CircuitState) {
	oldState := cb.state
	cb.state = newState
	cb.failures = 0
	cb.successes = 0

	if cb.config.OnStateChange != nil && oldState != newState {
		cb.config.OnStateChange(cb.config.Name, oldState, newState)
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() models.CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats is a snapshot of the breaker counters.
type Stats struct {
	Name       string
	State      models.CircuitState
	Failures   int
	Successes  int
	RecoveryAt time.Time
}

// Stats returns the current counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Name:       cb.config.Name,
		State:      cb.state,
		Failures:   cb.failures,
		Successes:  cb.successes,
		RecoveryAt: cb.recoveryAt,
	}
}

// Reset forces the breaker back to closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != models.CircuitClosed {
		cb.transitionTo(models.CircuitClosed)
	}
	cb.failures = 0
	cb.successes = 0
}
