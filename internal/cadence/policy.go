// Package cadence decides which incoming frame observations are processed.
// Observations arriving faster than the configured interval are dropped, never queued,
// so the engine always works on the most recent frame.
package cadence

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Policy is a drop-on-overflow frame limiter.
type Policy struct {
	interval time.Duration
	limiter  *rate.Limiter
	accepted int
	dropped  int
	mu       sync.Mutex
}

// NewPolicy creates a policy admitting at most one observation per minInterval.
// A zero or negative interval admits everything.
func NewPolicy(minInterval time.Duration) *Policy {
	p := &Policy{interval: minInterval}
	p.limiter = newLimiter(minInterval)
	return p
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Allow reports whether an observation arriving at now should be processed.
func (p *Policy) Allow(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.limiter.AllowN(now, 1) {
		p.accepted++
		return true
	}
	p.dropped++
	return false
}

// Reset forgets previous arrivals so the next observation is always accepted.
func (p *Policy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limiter = newLimiter(p.interval)
	p.accepted = 0
	p.dropped = 0
}

// Stats returns how many observations were accepted and dropped since the last reset.
func (p *Policy) Stats() (accepted, dropped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepted, p.dropped
}
