// Package ratelimit counts attempts per key in fixed windows.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"grimm.is/rampart/internal/clock"
)

// Limiter allows Limit attempts per key in each Window.
type Limiter struct {
	Limit  int
	Window time.Duration

	clock   clock.Clock
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   int
	lastFill time.Time
}

// NewLimiter creates a limiter. A nil clock uses the real one.
func NewLimiter(limit int, window time.Duration, clk clock.Clock) *Limiter {
	return &Limiter{
		Limit:   limit,
		Window:  window,
		clock:   clock.OrReal(clk),
		buckets: make(map[string]*bucket),
	}
}

// refill returns the bucket for key with tokens restored if its window
// has passed. Callers hold l.mu.
func (l *Limiter) refill(key string) *bucket {
	now := l.clock.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.Limit, lastFill: now}
		l.buckets[key] = b
	} else if now.Sub(b.lastFill) >= l.Window {
		b.tokens = l.Limit
		b.lastFill = now
	}
	return b
}

// Allow takes one attempt for key and reports whether it was available.
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN takes n attempts at once; nothing is taken when fewer remain.
func (l *Limiter) AllowN(key string, n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(key)
	if b.tokens < n {
		return false
	}
	b.tokens -= n
	return true
}

// Exhausted reports whether key has no attempts left, without taking one.
func (l *Limiter) Exhausted(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.buckets[key]; !ok {
		return false
	}
	return l.refill(key).tokens <= 0
}

// RetryAfter is how long until key's window resets. Zero when attempts remain.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok || b.tokens > 0 {
		return 0
	}
	if d := l.Window - l.clock.Since(b.lastFill); d > 0 {
		return d
	}
	return 0
}

// Reset forgets key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// CleanupExpired drops keys whose window started more than maxAge ago.
func (l *Limiter) CleanupExpired(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for key, b := range l.buckets {
		if now.Sub(b.lastFill) > maxAge {
			delete(l.buckets, key)
		}
	}
}

// RunCleanup calls CleanupExpired every interval until ctx is done.
func (l *Limiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.CleanupExpired(l.Window)
		}
	}
}
