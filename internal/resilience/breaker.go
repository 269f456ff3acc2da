// Package resilience provides reliability patterns for outbound model
// provider calls.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the observable breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Breaker guards a model provider's HTTP surface. Consecutive failures
// trip it open; after the cooldown a SINGLE probe call is let through
// (concurrent calls during the probe are rejected, so a recovering
// provider is not hammered by every queued turn at once). The probe's
// outcome closes or reopens the circuit. State transitions are logged
// with the provider name.
type Breaker struct {
	mu          sync.Mutex
	provider    string
	state       State
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	probing     bool
	now         func() time.Time // for testing
}

// NewBreaker creates a breaker for the named provider that opens after
// maxFailures consecutive failures and cools down for the given
// duration before probing.
func NewBreaker(provider string, maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		provider:    provider,
		state:       StateClosed,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn unless the circuit is open. In half-open state only
// the probe slot holder runs; everyone else gets ErrCircuitOpen.
func (b *Breaker) Execute(fn func() error) error {
	probe, ok := b.admit()
	if !ok {
		return ErrCircuitOpen
	}

	err := fn()
	b.settle(probe, err)
	return err
}

// admit decides whether a call may proceed. The second return is false
// when the circuit rejects the call; the first marks the caller as the
// half-open probe.
func (b *Breaker) admit() (probe, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, true

	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, false
		}
		b.state = StateHalfOpen
		b.probing = true
		slog.Info("circuit breaker probing", "provider", b.provider)
		return true, true

	case StateHalfOpen:
		if b.probing {
			return false, false // probe in flight, hold the rest back
		}
		b.probing = true
		return true, true
	}
	return false, false
}

// settle records a call outcome and drives state transitions.
func (b *Breaker) settle(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probing = false
	}

	if err == nil {
		if b.state != StateClosed {
			slog.Info("circuit breaker closed", "provider", b.provider)
		}
		b.state = StateClosed
		b.failures = 0
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.maxFailures {
		if b.state != StateOpen {
			slog.Warn("circuit breaker opened",
				"provider", b.provider,
				"failures", b.failures,
				"cooldown", b.cooldown,
			)
		}
		b.state = StateOpen
		b.openedAt = b.now()
	}
}
