// Package circuitbreaker guards outbound callbacks per target URL. After
// threshold consecutive failures a target is skipped until the cooldown has
// elapsed, then a single trial request is let through.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

type target struct {
	state    State
	failures int
	openedAt time.Time
}

type Breaker struct {
	mu        sync.Mutex
	targets   map[string]*target
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// New returns a breaker that opens after threshold consecutive failures.
// A threshold below 1 is treated as 1.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{
		targets:   make(map[string]*target),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Allow reports whether a call to url may proceed. An open target whose
// cooldown has elapsed moves to half-open and admits exactly one trial request.
func (b *Breaker) Allow(url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.targets[url]
	if !ok {
		return nil
	}

	switch t.state {
	case StateOpen:
		if b.now().Sub(t.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		t.state = StateHalfOpen
		return nil
	case StateHalfOpen:
		return ErrCircuitOpen
	default:
		return nil
	}
}

// RecordSuccess closes the circuit for url.
func (b *Breaker) RecordSuccess(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.targets, url)
}

// RecordFailure counts a failure. A failed half-open trial reopens the
// circuit immediately.
func (b *Breaker) RecordFailure(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.targets[url]
	if !ok {
		t = &target{}
		b.targets[url] = t
	}

	t.failures++
	if t.state == StateHalfOpen || t.failures >= b.threshold {
		t.state = StateOpen
		t.openedAt = b.now()
	}
}

// State returns the current state for url without changing it.
func (b *Breaker) State(url string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.targets[url]; ok {
		return t.state
	}
	return StateClosed
}
