package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket limits events to fillRate per second with bursts of up to
// capacity events.
//
// It tracks a single "theoretical arrival time" instead of a token count: each
// admitted token pushes tat forward by one refill interval, and a request is
// rejected when that would put tat more than one full bucket ahead of now.
type TokenBucket struct {
	mu    sync.Mutex
	clock Clock

	interval time.Duration // time to earn one token
	burst    time.Duration // interval * capacity
	tat      time.Time
}

// NewTokenBucket returns a bucket that starts full. A fillRate <= 0 disables
// limiting; a capacity <= 0 defaults to fillRate.
func NewTokenBucket(clock Clock, capacity, fillRate int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	b := &TokenBucket{clock: clock}
	if fillRate <= 0 {
		return b
	}
	if capacity <= 0 {
		capacity = fillRate
	}
	b.interval = time.Second / time.Duration(fillRate)
	if b.interval <= 0 {
		b.interval = 1
	}
	b.burst = b.interval * time.Duration(capacity)
	return b
}

// Allow consumes tokens if they are available. tokens <= 0 always succeeds.
func (b *TokenBucket) Allow(tokens int64) bool {
	if tokens <= 0 || b.interval == 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	tat := b.tat
	if tat.Before(now) {
		tat = now
	}
	next := tat.Add(b.interval * time.Duration(tokens))
	if next.Sub(now) > b.burst {
		return false
	}
	b.tat = next
	return true
}
