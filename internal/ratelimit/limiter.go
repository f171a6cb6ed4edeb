// Package ratelimit implements RateLimiter: a sliding-window per-user
// token accounting scheme with amortized cleanup of expired timestamps.
// Cleanup only trims the bucket of the user being checked; a bucket
// itself is removed only by ClearUserLimits or ClearAllLimits, so
// buckets of users who stop calling stay in memory.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"collabcore/internal/model"
)

const (
	DefaultMaxPerSecond = 100
	DefaultMaxPerMinute = 1000
	DefaultWindowMs     = 60_000

	cleanupInterval = 10 * time.Second
)

// Options configures a Limiter. Zero values fall back to the defaults
// below.
type Options struct {
	MaxPerSecond int
	MaxPerMinute int
	WindowMs     int
}

func (o Options) withDefaults() Options {
	if o.MaxPerSecond <= 0 {
		o.MaxPerSecond = DefaultMaxPerSecond
	}
	if o.MaxPerMinute <= 0 {
		o.MaxPerMinute = DefaultMaxPerMinute
	}
	if o.WindowMs <= 0 {
		o.WindowMs = DefaultWindowMs
	}
	return o
}

type bucket struct {
	timestamps  []time.Time
	lastCleanup time.Time
}

// Limiter is a per-userId sliding-window rate limiter.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	opts    Options

	now func() time.Time
}

// New returns a Limiter configured with opts (zero fields use defaults).
func New(opts Options) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		opts:    opts.withDefaults(),
		now:     time.Now,
	}
}

// IsAllowed reports whether the current call for userID is within both
// the per-second and per-minute windows, and records it only if so;
// denied calls are not recorded.
func (l *Limiter) IsAllowed(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[userID]
	if !ok {
		b = &bucket{lastCleanup: now}
		l.buckets[userID] = b
	}

	if now.Sub(b.lastCleanup) >= cleanupInterval {
		l.sweep(b, now)
	}

	windowStart := now.Add(-time.Duration(l.opts.WindowMs) * time.Millisecond)
	secondStart := now.Add(-1 * time.Second)

	perSecond := 0
	perWindow := 0
	for _, ts := range b.timestamps {
		if ts.After(windowStart) {
			perWindow++
			if ts.After(secondStart) {
				perSecond++
			}
		}
	}

	if perSecond >= l.opts.MaxPerSecond {
		return false
	}
	if perWindow >= l.opts.MaxPerMinute {
		return false
	}

	b.timestamps = append(b.timestamps, now)
	return true
}

// sweep drops timestamps older than the configured window. Caller must
// hold l.mu.
func (l *Limiter) sweep(b *bucket, now time.Time) {
	cutoff := now.Add(-time.Duration(l.opts.WindowMs) * time.Millisecond)
	kept := b.timestamps[:0]
	for _, ts := range b.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.timestamps = kept
	b.lastCleanup = now
}

// CheckAndRecord wraps IsAllowed, returning ErrRateLimited on deny.
func (l *Limiter) CheckAndRecord(userID string) error {
	if !l.IsAllowed(userID) {
		return fmt.Errorf("user %q exceeded rate limit: %w", userID, model.ErrRateLimited)
	}
	return nil
}

// ClearUserLimits drops userID's bucket entirely.
func (l *Limiter) ClearUserLimits(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, userID)
}

// ClearAllLimits drops every tracked bucket.
func (l *Limiter) ClearAllLimits() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*bucket)
}
