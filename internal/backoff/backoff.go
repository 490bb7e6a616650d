// Package backoff implements the capped exponential reconnect delay shared by
// the chat and backend supervisors.
package backoff

import (
	"context"
	"sync"
	"time"
)

// Default bounds used when a config value is missing or non-positive
const (
	DefaultMin = 1 * time.Second
	DefaultMax = 60 * time.Second
)

// Policy hands out reconnect delays that start at Min, double after every
// failed attempt and never exceed Max. Reset returns to Min.
type Policy struct {
	mu      sync.Mutex
	min     time.Duration
	max     time.Duration
	current time.Duration
}

// New creates a policy. Non-positive bounds fall back to the defaults and a
// max below min is raised to min.
func New(min, max time.Duration) *Policy {
	if min <= 0 {
		min = DefaultMin
	}
	if max <= 0 {
		max = DefaultMax
	}
	if max < min {
		max = min
	}
	return &Policy{min: min, max: max, current: min}
}

// Next returns the delay to wait before the coming attempt and doubles the
// delay for the attempt after it.
func (p *Policy) Next() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	delay := p.current
	p.current *= 2
	if p.current > p.max {
		p.current = p.max
	}
	return delay
}

// Peek returns the delay Next would hand out without advancing
func (p *Policy) Peek() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Reset returns the delay to the minimum after a successful connect
func (p *Policy) Reset() {
	p.mu.Lock()
	p.current = p.min
	p.mu.Unlock()
}

// Wait sleeps for the next delay. It returns the delay it waited for, or the
// context error if ctx ends first.
func (p *Policy) Wait(ctx context.Context) (time.Duration, error) {
	delay := p.Next()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return delay, nil
	case <-ctx.Done():
		return delay, ctx.Err()
	}
}
