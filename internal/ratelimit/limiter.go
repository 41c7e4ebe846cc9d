// Package ratelimit paces page navigations.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket for navigations. A zero rate disables it.
type Limiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
	rps     float64
	burst   int
	waits   int64
}

// New creates a limiter allowing requestsPerSecond with the given burst.
// requestsPerSecond <= 0 means unlimited.
func New(requestsPerSecond float64, burst int) *Limiter {
	l := &Limiter{}
	l.SetRate(requestsPerSecond, burst)
	return l
}

// Wait blocks until a navigation is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	lim := l.limiter
	l.waits++
	l.mu.Unlock()

	if lim == nil {
		return ctx.Err()
	}
	return lim.Wait(ctx)
}

// Allow reports whether a navigation may happen now, consuming a token.
func (l *Limiter) Allow() bool {
	l.mu.RLock()
	lim := l.limiter
	l.mu.RUnlock()

	if lim == nil {
		return true
	}
	return lim.Allow()
}

// SetRate replaces the rate. Burst is at least 1.
func (l *Limiter) SetRate(requestsPerSecond float64, burst int) {
	if burst < 1 {
		burst = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.rps = requestsPerSecond
	l.burst = burst
	if requestsPerSecond <= 0 {
		l.limiter = nil
		return
	}
	if l.limiter == nil {
		l.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
		return
	}
	l.limiter.SetLimit(rate.Limit(requestsPerSecond))
	l.limiter.SetBurst(burst)
}

// Enabled reports whether navigations are paced.
func (l *Limiter) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiter != nil
}

// Stats returns limiter statistics.
func (l *Limiter) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{
		Rate:    l.rps,
		Burst:   l.burst,
		Enabled: l.limiter != nil,
		Waits:   l.waits,
	}
}

// Stats contains limiter statistics.
type Stats struct {
	Rate    float64 `json:"rate"`
	Burst   int     `json:"burst"`
	Enabled bool    `json:"enabled"`
	Waits   int64   `json:"waits"`
}
