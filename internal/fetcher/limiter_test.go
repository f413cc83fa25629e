package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHostLimiterDisabled(t *testing.T) {
	limiter := NewHostLimiter(0, RateLimit{})
	assert.Nil(t, limiter)
	assert.NoError(t, limiter.Wait(context.Background(), "example.com"))
}

func TestHostLimiterDelay(t *testing.T) {
	limiter := NewHostLimiter(40*time.Millisecond, RateLimit{})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx, "example.com"))
	require.NoError(t, limiter.Wait(ctx, "EXAMPLE.com"))
	require.NoError(t, limiter.Wait(ctx, "example.com"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestHostLimiterHostsAreIndependent(t *testing.T) {
	limiter := NewHostLimiter(time.Second, RateLimit{})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx, "a.example"))
	require.NoError(t, limiter.Wait(ctx, "b.example"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestHostLimiterCancelled(t *testing.T) {
	limiter := NewHostLimiter(time.Minute, RateLimit{})
	require.NoError(t, limiter.Wait(context.Background(), "example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, limiter.Wait(ctx, "example.com"), context.DeadlineExceeded)
}

func TestHostLimiterRate(t *testing.T) {
	limiter := NewHostLimiter(0, RateLimit{Requests: 1, Window: 50 * time.Millisecond})
	require.NotNil(t, limiter)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Wait(ctx, "example.com"))
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
