package ratelimit

import (
	"context"
	"sync"
	"time"
)

// BandwidthLimiter is a process-wide token bucket consulted before every
// chunk worker's socket read (§4.2). A zero rate disables limiting
// entirely, so Acquire becomes a no-op pass-through.
type BandwidthLimiter struct {
	mu         sync.Mutex
	ratePerSec int64
	capacity   int64
	tokens     float64
	lastRefill time.Time
}

// NewBandwidthLimiter builds a limiter with the given sustained rate in
// bytes/sec. Burst capacity defaults to one second's worth of budget, per
// §4.2, and the bucket starts full. ratePerSec <= 0 disables limiting.
func NewBandwidthLimiter(ratePerSec int64) *BandwidthLimiter {
	b := &BandwidthLimiter{lastRefill: time.Now()}
	b.SetRate(ratePerSec)
	b.tokens = float64(b.capacity)
	return b
}

// SetRate changes the sustained rate and burst capacity in place; takes
// effect on the next Acquire, satisfying the <=1s update latency in §4.2.
func (b *BandwidthLimiter) SetRate(ratePerSec int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ratePerSec = ratePerSec
	b.capacity = ratePerSec
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
}

// Rate returns the currently configured sustained rate in bytes/sec (0
// means unlimited).
func (b *BandwidthLimiter) Rate() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ratePerSec
}

func (b *BandwidthLimiter) refillLocked(now time.Time) {
	if b.ratePerSec <= 0 {
		return
	}
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * float64(b.ratePerSec)
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
	b.lastRefill = now
}

// Acquire blocks until at least one token is available, then returns a
// permitted byte count <= requested. When disabled (rate == 0) it returns
// requested immediately. Cooperative: a worker should read no more than the
// returned count before calling Acquire again, so no single worker can
// starve the others for more than about 1 second (§4.2). A ctx that is
// already done yields ctx.Err() without granting anything.
func (b *BandwidthLimiter) Acquire(ctx context.Context, requested int) (int, error) {
	if requested <= 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	for {
		b.mu.Lock()
		if b.ratePerSec <= 0 {
			b.mu.Unlock()
			return requested, nil
		}

		now := time.Now()
		b.refillLocked(now)

		if b.tokens >= 1 {
			granted := requested
			if float64(granted) > b.tokens {
				granted = int(b.tokens)
			}
			if granted < 1 {
				granted = 1
			}
			b.tokens -= float64(granted)
			b.mu.Unlock()
			return granted, nil
		}

		// Not enough tokens yet: wait long enough for at least one to
		// accrue, then retry.
		deficit := 1 - b.tokens
		waitSecs := deficit / float64(b.ratePerSec)
		b.mu.Unlock()

		timer := time.NewTimer(time.Duration(waitSecs * float64(time.Second)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
}
