package infra

import (
	"context"
	"math"
	"sync"
	"time"
)

// RateLimiter is a token bucket. Safe for concurrent use.
type RateLimiter struct {
	burst float64
	rate  float64 // tokens per second
	now   func() time.Time

	mu     sync.Mutex
	tokens float64
	at     time.Time
}

// NewRateLimiter creates a full bucket of burst tokens refilled at perSecond.
func NewRateLimiter(burst int, perSecond float64) *RateLimiter {
	r := &RateLimiter{burst: float64(burst), rate: perSecond, now: time.Now}
	r.tokens = r.burst
	r.at = r.now()
	return r
}

// take consumes a token if one is available, otherwise returns how long
// until one will be. A non-positive rate never refills.
func (r *RateLimiter) take() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.rate > 0 {
		r.tokens = math.Min(r.burst, r.tokens+now.Sub(r.at).Seconds()*r.rate)
	}
	r.at = now
	if r.tokens >= 1 {
		r.tokens--
		return 0, true
	}
	if r.rate <= 0 {
		return time.Duration(math.MaxInt64), false
	}
	return time.Duration((1 - r.tokens) / r.rate * float64(time.Second)), false
}

// Wait blocks until a token is taken or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait, ok := r.take()
		if ok {
			return nil
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// TryAcquire takes a token without blocking.
func (r *RateLimiter) TryAcquire() bool {
	_, ok := r.take()
	return ok
}

// VenueLimiters groups the per-endpoint-class limiters of one exchange account.
type VenueLimiters struct {
	Order   *RateLimiter
	Account *RateLimiter
	Market  *RateLimiter
}

// NewBybitLimiters returns conservative limiters under Bybit's v5 per-UID quotas.
func NewBybitLimiters() VenueLimiters {
	return VenueLimiters{
		Order:   NewRateLimiter(5, 10),
		Account: NewRateLimiter(5, 10),
		Market:  NewRateLimiter(10, 20),
	}
}
