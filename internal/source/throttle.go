package source

import (
	"context"
	"sync"
	"time"
)

// Throttle is a token bucket limiting requests per minute across all
// sources sharing a Client.
type Throttle struct {
	mu         sync.Mutex
	tokens     float64
	ratePerS   float64
	burst      float64
	lastRefill time.Time
	disabled   bool
}

func NewThrottle(perMinute, burst int) *Throttle {
	if perMinute <= 0 {
		return &Throttle{disabled: true}
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		tokens:     float64(burst),
		ratePerS:   float64(perMinute) / 60.0,
		burst:      float64(burst),
		lastRefill: time.Now(),
	}
}

func (t *Throttle) Allow() bool {
	if t == nil || t.disabled {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refillLocked()
	if t.tokens >= 1 {
		t.tokens -= 1
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.disabled {
		return nil
	}
	for {
		if t.Allow() {
			return nil
		}
		timer := time.NewTimer(t.timeUntilNext())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (t *Throttle) timeUntilNext() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refillLocked()
	if t.tokens >= 1 {
		return 0
	}
	need := 1 - t.tokens
	return time.Duration(need / t.ratePerS * float64(time.Second))
}

func (t *Throttle) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(t.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	t.tokens += elapsed * t.ratePerS
	if t.tokens > t.burst {
		t.tokens = t.burst
	}
	t.lastRefill = now
}
