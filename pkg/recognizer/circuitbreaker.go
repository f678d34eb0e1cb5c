package recognizer

import (
	"errors"
	"sync"
	"time"

	"github.com/ghanavoice/ledger/internal/clock"
	"github.com/ghanavoice/ledger/internal/logging"
)

// ErrCircuitOpen is returned by CircuitBreaker.Execute when the breaker is
// open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("recognizer: circuit breaker is open")

// BreakerState is the three-state circuit breaker lifecycle.
type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker protects a recognizer backend from cascading retries once
// it has started failing consistently, using a pinned
// three-consecutive-failures / 60s-reset policy.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	clock        clock.Clock
	log          logging.Logger

	mu              sync.Mutex
	state           BreakerState
	consecutiveFail int
	lastFailure     time.Time
}

// NewCircuitBreaker builds a CircuitBreaker named name that opens after
// maxFailures consecutive failures and stays open for resetTimeout.
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration, c clock.Clock, log logging.Logger) *CircuitBreaker {
	if log == nil {
		log = logging.NoOpLogger{}
	}
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		clock:        c,
		log:          log,
		state:        Closed,
	}
}

// Execute runs fn if the breaker allows it.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.state == Open {
		if cb.clock.Since(cb.lastFailure) >= cb.resetTimeout {
			cb.state = HalfOpen
			cb.log.Info("circuit breaker half-open", "name", cb.name)
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	wasHalfOpen := cb.state == HalfOpen
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.lastFailure = cb.clock.Now()
		if wasHalfOpen {
			cb.state = Open
			cb.log.Warn("circuit breaker re-opened from half-open", "name", cb.name)
			return err
		}
		cb.consecutiveFail++
		if cb.consecutiveFail >= cb.maxFailures {
			cb.state = Open
			cb.log.Warn("circuit breaker opened", "name", cb.name, "consecutive_failures", cb.consecutiveFail)
		}
		return err
	}

	if wasHalfOpen {
		cb.state = Closed
		cb.log.Info("circuit breaker closed after successful probe", "name", cb.name)
	}
	cb.consecutiveFail = 0
	return nil
}

// State reports the breaker's current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == Open && cb.clock.Since(cb.lastFailure) >= cb.resetTimeout {
		return HalfOpen
	}
	return cb.state
}
