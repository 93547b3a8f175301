package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

const defaultLimitPerSec = 100

var _ RateLimiter = (*LocalRateLimiter)(nil)

// LocalRateLimiter is an in-process token bucket per key. It is used when no
// Redis is configured and only one API instance sends.
type LocalRateLimiter struct {
	mu          sync.Mutex
	limitPerSec int
	limiters    map[string]*rate.Limiter
}

func NewLocalRateLimiter(limitPerSec int) *LocalRateLimiter {
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	return &LocalRateLimiter{
		limitPerSec: limitPerSec,
		limiters:    make(map[string]*rate.Limiter),
	}
}

func (l *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	limiter, err := l.limiterFor(key)
	if err != nil {
		return false, err
	}
	return limiter.Allow(), nil
}

func (l *LocalRateLimiter) Wait(ctx context.Context, key string) error {
	limiter, err := l.limiterFor(key)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return limiter.Wait(ctx)
}

func (l *LocalRateLimiter) limiterFor(key string) (*rate.Limiter, error) {
	if l == nil {
		return nil, fmt.Errorf("rate limiter is not initialized")
	}

	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return nil, fmt.Errorf("rate limit key is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[normalized]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.limitPerSec), l.limitPerSec)
		l.limiters[normalized] = limiter
	}
	return limiter, nil
}
