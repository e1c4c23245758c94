// Package circuit stops calls to a dependency after repeated failures and lets
// a single trial call through once the cooldown has passed.
package circuit

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by callers that skip work while the breaker is open.
var ErrOpen = errors.New("circuit open")

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

type Breaker struct {
	mu sync.Mutex

	name      string
	threshold int
	cooldown  time.Duration

	state     State
	failures  int
	openUntil time.Time
}

type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{name: name, threshold: 5, cooldown: 30 * time.Second, state: StateClosed}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may go out at now. After the cooldown exactly
// one caller gets through as a trial call; the rest wait for its outcome.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Before(b.openUntil) {
			return false
		}
		b.state = StateHalfOpen
		return true
	default:
		return false
	}
}

// RecordSuccess closes the breaker and reports whether it was not closed before.
func (b *Breaker) RecordSuccess() (closed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	closed = b.state != StateClosed
	b.state = StateClosed
	b.failures = 0
	return closed
}

// RecordFailure counts a failure at now and reports whether it opened the breaker.
// A failed trial call reopens it for another cooldown.
func (b *Breaker) RecordFailure(now time.Time) (opened bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.state == StateHalfOpen || (b.state == StateClosed && b.failures >= b.threshold) {
		b.state = StateOpen
		b.openUntil = now.Add(b.cooldown)
		return true
	}
	return false
}

func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.openUntil = time.Time{}
}
