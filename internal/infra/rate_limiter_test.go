package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limiterAt(burst int, rate float64) (*RateLimiter, *manualClock) {
	clock := &manualClock{t: time.Unix(1_700_000_000, 0)}
	r := NewRateLimiter(burst, rate)
	r.now = clock.now
	r.at = clock.t
	return r, clock
}

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	r, clock := limiterAt(3, 2)

	for i := 0; i < 3; i++ {
		require.True(t, r.TryAcquire(), "burst token %d", i)
	}
	assert.False(t, r.TryAcquire())

	wait, ok := r.take()
	assert.False(t, ok)
	assert.Equal(t, 500*time.Millisecond, wait)

	clock.advance(499 * time.Millisecond)
	assert.False(t, r.TryAcquire())
	clock.advance(time.Millisecond)
	assert.True(t, r.TryAcquire())
}

func TestRateLimiter_RefillCapsAtBurst(t *testing.T) {
	r, clock := limiterAt(2, 10)
	r.TryAcquire()
	r.TryAcquire()

	clock.advance(time.Hour)
	assert.True(t, r.TryAcquire())
	assert.True(t, r.TryAcquire())
	assert.False(t, r.TryAcquire())
}

func TestRateLimiter_ZeroRateNeverRefills(t *testing.T) {
	r, clock := limiterAt(1, 0)
	require.True(t, r.TryAcquire())
	clock.advance(24 * time.Hour)
	assert.False(t, r.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}

func TestRateLimiter_WaitBlocksUntilRefill(t *testing.T) {
	r := NewRateLimiter(1, 100)
	require.NoError(t, r.Wait(context.Background()))

	start := time.Now()
	require.NoError(t, r.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestBybitLimiters_Independent(t *testing.T) {
	l := NewBybitLimiters()
	require.NotNil(t, l.Order)
	require.NotNil(t, l.Account)
	require.NotNil(t, l.Market)

	for l.Order.TryAcquire() {
	}
	assert.True(t, l.Account.TryAcquire())
	assert.True(t, l.Market.TryAcquire())
}
