package collector

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultRateLimit = 5000 // GitHub API default limit per hour
	lowWatermark     = 10
)

// RateLimiter manages GitHub API rate limiting
type RateLimiter interface {
	Wait(ctx context.Context) error
	CheckLimit() (remaining int, resetTime time.Time, err error)
	UpdateLimit(remaining int, resetTime time.Time)
}

// githubRateLimiter implements RateLimiter for GitHub API
type githubRateLimiter struct {
	mu        sync.Mutex
	remaining int
	resetTime time.Time
	pace      *rate.Limiter
	logger    *zap.Logger
}

// NewRateLimiter creates a new rate limiter that spaces requests at least
// minDelay apart. A zero minDelay disables pacing.
func NewRateLimiter(minDelay time.Duration, logger *zap.Logger) RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &githubRateLimiter{
		remaining: defaultRateLimit,
		resetTime: time.Now().Add(time.Hour),
		pace:      rate.NewLimiter(rate.Every(minDelay), 1),
		logger:    logger,
	}
}

// Wait blocks until it's safe to make another API call
func (r *githubRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	remaining, resetTime := r.remaining, r.resetTime
	r.mu.Unlock()

	if remaining <= lowWatermark {
		if waitDuration := time.Until(resetTime); waitDuration > 0 {
			r.logger.Warn("rate limit low, waiting for reset",
				zap.Int("remaining", remaining),
				zap.Duration("wait", waitDuration.Round(time.Second)))

			timer := time.NewTimer(waitDuration)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			r.logger.Info("rate limit reset, continuing")
		}

		r.mu.Lock()
		// Another waiter or a response may have refreshed the window already.
		if r.resetTime.Equal(resetTime) {
			r.remaining = defaultRateLimit
			r.resetTime = time.Now().Add(time.Hour)
		}
		r.mu.Unlock()
	}

	return r.pace.Wait(ctx)
}

// CheckLimit returns the current rate limit status
func (r *githubRateLimiter) CheckLimit() (remaining int, resetTime time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining, r.resetTime, nil
}

// UpdateLimit updates the rate limit from API response headers
func (r *githubRateLimiter) UpdateLimit(remaining int, resetTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = remaining
	r.resetTime = resetTime
}
