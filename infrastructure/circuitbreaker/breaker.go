// Package circuitbreaker provides a circuit breaker for calls to an external backend.
//
// Failures are tracked in a sliding window bounded by MonitoringPeriod. Once the
// window holds FailureThreshold failures the circuit opens and fails fast until
// Timeout elapses, after which a single probing call is admitted in half-open state.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
)

// ErrCircuitOpen is matched by every CircuitOpenError.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Default configuration values.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultTimeout          = 60 * time.Second
	DefaultMonitoringPeriod = 300 * time.Second
)

// CircuitOpenError is returned without running the operation while the circuit is open.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open: retry after %v", e.Name, e.RetryAfter)
}

// Is reports whether target is ErrCircuitOpen.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// State represents the state of the circuit breaker
type State int

const (
	// StateClosed means the circuit is closed and requests are allowed
	StateClosed State = iota
	// StateOpen means the circuit is open and requests are blocked
	StateOpen
	// StateHalfOpen means the circuit is half-open and testing if the backend recovered
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config configures a circuit breaker
type Config struct {
	// Name identifies the breaker in errors, logs and metrics.
	Name string
	// FailureThreshold is the number of failures inside MonitoringPeriod that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes required to close the circuit.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before admitting a probe.
	Timeout time.Duration
	// MonitoringPeriod bounds the sliding failure window.
	MonitoringPeriod time.Duration
	// IsFailure decides whether an error counts against the circuit.
	// Defaults to every non-nil error except context.Canceled.
	IsFailure func(error) bool
	// OnStateChange is an optional callback invoked on every transition.
	OnStateChange func(name string, from, to State)
	// Clock is the time source. Defaults to the wall clock.
	Clock clock.Clock
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		SuccessThreshold: DefaultSuccessThreshold,
		Timeout:          DefaultTimeout,
		MonitoringPeriod: DefaultMonitoringPeriod,
	}
}

// DefaultIsFailure counts every error other than caller cancellation.
func DefaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Breaker implements the circuit breaker pattern. It is safe for concurrent use.
type Breaker struct {
	mu            sync.Mutex
	name          string
	state         State
	failures      []time.Time
	successCount  int
	nextRetryTime time.Time
	probing       bool
	config        Config
}

// New creates a new circuit breaker with the given configuration
func New(config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultFailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultSuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MonitoringPeriod <= 0 {
		config.MonitoringPeriod = DefaultMonitoringPeriod
	}
	if config.IsFailure == nil {
		config.IsFailure = DefaultIsFailure
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}

	return &Breaker{
		name:   config.Name,
		state:  StateClosed,
		config: config,
	}
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// Execute runs fn with circuit breaker protection.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.beforeCall()
	if err != nil {
		return err
	}

	err = fn(ctx)
	b.afterCall(probe, err)

	return err
}

// ExecuteWithResult runs fn with circuit breaker protection and returns its value.
func ExecuteWithResult[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := b.Execute(ctx, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}

// beforeCall decides whether a call may proceed. It reports whether the call is the half-open probe.
func (b *Breaker) beforeCall() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.config.Clock.Now()

	if b.state == StateOpen {
		if now.Before(b.nextRetryTime) {
			return false, &CircuitOpenError{Name: b.name, RetryAfter: b.nextRetryTime.Sub(now)}
		}
		b.transitionTo(StateHalfOpen)
	}

	if b.state == StateHalfOpen {
		if b.probing {
			return false, &CircuitOpenError{Name: b.name}
		}
		b.probing = true
		return true, nil
	}

	return false, nil
}

// afterCall records the result of the call
func (b *Breaker) afterCall(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probing = false
	}

	if err == nil {
		b.recordSuccess()
		return
	}
	if b.config.IsFailure(err) {
		b.recordFailure()
	}
}

func (b *Breaker) recordFailure() {
	now := b.config.Clock.Now()
	b.failures = append(b.failures, now)
	b.pruneFailures(now)

	switch b.state {
	case StateHalfOpen:
		// No partial credit in half-open.
		b.open(now)
	case StateClosed:
		if len(b.failures) >= b.config.FailureThreshold {
			b.open(now)
		}
	case StateOpen:
	}
}

func (b *Breaker) recordSuccess() {
	b.failures = b.failures[:0]

	if b.state == StateHalfOpen {
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.transitionTo(StateClosed)
		}
	}
}

// pruneFailures drops failure timestamps that fell out of the monitoring window.
func (b *Breaker) pruneFailures(now time.Time) {
	cutoff := now.Add(-b.config.MonitoringPeriod)
	kept := b.failures[:0]
	for _, ts := range b.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.failures = kept
}

func (b *Breaker) open(now time.Time) {
	b.nextRetryTime = now.Add(b.config.Timeout)
	b.transitionTo(StateOpen)
}

// transitionTo transitions to a new state
func (b *Breaker) transitionTo(newState State) {
	if b.state == newState {
		return
	}

	oldState := b.state
	b.state = newState

	switch newState {
	case StateClosed:
		b.failures = b.failures[:0]
		b.successCount = 0
	case StateOpen:
		b.successCount = 0
	case StateHalfOpen:
		b.successCount = 0
		b.probing = false
	}

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.name, oldState, newState)
	}
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset resets the circuit breaker to closed state
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(StateClosed)
}

// Stats returns statistics about the circuit breaker
type Stats struct {
	Name          string    `json:"name"`
	State         string    `json:"state"`
	FailureCount  int       `json:"failure_count"`
	SuccessCount  int       `json:"success_count"`
	NextRetryTime time.Time `json:"next_retry_time,omitzero"`
}

// GetStats returns current statistics
func (b *Breaker) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{
		Name:         b.name,
		State:        b.state.String(),
		FailureCount: len(b.failures),
		SuccessCount: b.successCount,
	}
	if b.state == StateOpen {
		stats.NextRetryTime = b.nextRetryTime
	}
	return stats
}
