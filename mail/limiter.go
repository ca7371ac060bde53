package mail

import (
	"context"
	"sync"
	"time"

	"github.com/ldg-erp/duework/errors"
)

// Limiter enforces a maximum send rate using a sliding one-minute
// window, keeping reminder bursts from flooding the mail provider.
type Limiter struct {
	maxPerMinute int
	window       time.Duration
	mu           sync.Mutex
	sendTimes    []time.Time
	timeNow      func() time.Time // Injectable for testing
}

// NewLimiter creates a rate limiter with real time
func NewLimiter(maxPerMinute int) *Limiter {
	return NewLimiterWithClock(maxPerMinute, time.Now)
}

// NewLimiterWithClock creates a rate limiter with injectable clock (for testing)
func NewLimiterWithClock(maxPerMinute int, timeNow func() time.Time) *Limiter {
	return &Limiter{
		maxPerMinute: maxPerMinute,
		window:       time.Minute,
		sendTimes:    make([]time.Time, 0, maxPerMinute),
		timeNow:      timeNow,
	}
}

// Allow records a send if capacity remains in the window.
// Returns an error when the limit is exceeded.
func (r *Limiter) Allow() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.timeNow()
	r.removeExpired(now)

	if len(r.sendTimes) >= r.maxPerMinute {
		return errors.Newf("mail rate limit exceeded: %d sends per minute (limit: %d)",
			len(r.sendTimes), r.maxPerMinute)
	}

	r.sendTimes = append(r.sendTimes, now)
	return nil
}

// Wait blocks until a send is allowed or the context ends. Rather
// than polling, it sleeps until the oldest send leaves the window.
func (r *Limiter) Wait(ctx context.Context) error {
	for {
		if err := r.Allow(); err == nil {
			return nil
		}

		timer := time.NewTimer(r.untilNextSlot())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// untilNextSlot reports how long until the oldest send in the window
// expires and frees a slot. A millisecond floor avoids busy-looping
// when the clock moves between the failed Allow and this read.
func (r *Limiter) untilNextSlot() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	wait := time.Duration(0)
	if len(r.sendTimes) > 0 {
		wait = r.sendTimes[0].Add(r.window).Sub(r.timeNow())
	}
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

// removeExpired drops send timestamps outside the sliding window.
// Must be called with lock held. Timestamps are ordered, so expired
// entries sit at the front.
func (r *Limiter) removeExpired(now time.Time) {
	cutoff := now.Add(-r.window)

	expired := 0
	for _, ts := range r.sendTimes {
		if !ts.After(cutoff) {
			expired++
		} else {
			break
		}
	}

	r.sendTimes = r.sendTimes[expired:]
}

// Stats returns the current window usage
func (r *Limiter) Stats() (sendsInWindow int, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeExpired(r.timeNow())

	sendsInWindow = len(r.sendTimes)
	remaining = r.maxPerMinute - sendsInWindow
	if remaining < 0 {
		remaining = 0
	}
	return sendsInWindow, remaining
}
