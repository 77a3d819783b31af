package collector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRateLimiterUpdateAndCheck(t *testing.T) {
	rl := NewRateLimiter(0, zaptest.NewLogger(t))
	reset := time.Now().Add(30 * time.Minute)

	rl.UpdateLimit(42, reset)

	remaining, resetTime, err := rl.CheckLimit()
	require.NoError(t, err)
	assert.Equal(t, 42, remaining)
	assert.True(t, resetTime.Equal(reset))
}

func TestRateLimiterRefreshesExpiredWindow(t *testing.T) {
	rl := NewRateLimiter(0, zaptest.NewLogger(t))
	rl.UpdateLimit(0, time.Now().Add(-time.Second))

	require.NoError(t, rl.Wait(context.Background()))

	remaining, _, _ := rl.CheckLimit()
	assert.Equal(t, defaultRateLimit, remaining)
}

func TestRateLimiterWaitHonoursCancellation(t *testing.T) {
	rl := NewRateLimiter(0, zaptest.NewLogger(t))
	rl.UpdateLimit(1, time.Now().Add(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiterPacesRequests(t *testing.T) {
	rl := NewRateLimiter(20*time.Millisecond, nil)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}
