package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterCeiling(t *testing.T) {
	limiter := New(NewMemoryStore(), 5, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res, err := limiter.Allow(ctx, "1.2.3.4:/login")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "attempt %d should be allowed", i)
		assert.Equal(t, int64(i), res.Count)
	}

	res, err := limiter.Allow(ctx, "1.2.3.4:/login")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(6), res.Count)
	assert.Equal(t, int64(0), res.Remaining)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestRejectionStillCounts(t *testing.T) {
	// Attempts past the ceiling keep pushing the counter up, so hammering
	// a limited endpoint never helps.
	limiter := New(NewMemoryStore(), 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.Allow(ctx, "k")
		require.NoError(t, err)
	}

	res, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(6), res.Count)
}

func TestKeysAreIndependent(t *testing.T) {
	limiter := New(NewMemoryStore(), 1, time.Minute)
	ctx := context.Background()

	res, err := limiter.Allow(ctx, "1.2.3.4:/login")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Allow(ctx, "1.2.3.4:/login")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	// Different address, same endpoint
	res, err = limiter.Allow(ctx, "5.6.7.8:/login")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	// Same address, different endpoint
	res, err = limiter.Allow(ctx, "1.2.3.4:/signup")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestWindowRollover(t *testing.T) {
	limiter := New(NewMemoryStore(), 1, 20*time.Millisecond)
	ctx := context.Background()

	res, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	time.Sleep(25 * time.Millisecond)

	res, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "new window should admit requests again")
	assert.Equal(t, int64(1), res.Count)
}

func TestReset(t *testing.T) {
	limiter := New(NewMemoryStore(), 1, time.Minute)
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	res, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	require.NoError(t, limiter.Reset(ctx, "k"))

	res, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
