package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/sms-dispatch/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec int64 = 100
	keyPrefix                = "sms-dispatch:gateway-bucket:"
)

// reserveScript is a token bucket kept in one hash. It takes a token when one
// is available and returns 0, otherwise it returns the milliseconds until the
// next token without taking anything.
var reserveScript = goredis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = burst
  ts = now
end

local elapsed = now - ts
if elapsed < 0 then
  elapsed = 0
end
tokens = math.min(burst, tokens + elapsed * rate / 1000)

local wait = 0
if tokens >= 1 then
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) * 1000 / rate)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", tostring(now))
redis.call("PEXPIRE", KEYS[1], math.ceil(burst * 1000 / rate) + 1000)
return wait
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter shares the gateway's per-second quota between every API
// instance pointed at the same Redis. It refills like the in-process limiter:
// limitPerSec tokens per second with a burst of limitPerSec.
type RedisRateLimiter struct {
	client      *goredis.Client
	limitPerSec int64
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRedisRateLimiter(client *goredis.Client, limitPerSec int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(limitPerSec), time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limitPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client:      client,
		limitPerSec: limitPerSec,
		now:         nowFn,
		sleep:       sleepFn,
	}, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	wait, err := r.reserve(ctx, key)
	if err != nil {
		return false, err
	}
	return wait == 0, nil
}

// Wait blocks until a token is taken or ctx ends.
func (r *RedisRateLimiter) Wait(ctx context.Context, key string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		wait, err := r.reserve(ctx, key)
		if err != nil {
			return err
		}
		if wait == 0 {
			return nil
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// reserve returns zero when a token was taken, or how long until one is due.
func (r *RedisRateLimiter) reserve(ctx context.Context, key string) (time.Duration, error) {
	if r == nil || r.client == nil {
		return 0, fmt.Errorf("rate limiter is not initialized")
	}
	bucket := strings.ToLower(strings.TrimSpace(key))
	if bucket == "" {
		return 0, fmt.Errorf("rate limit key is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	nowMillis := r.now().UnixMilli()
	waitMillis, err := reserveScript.Run(ctx, r.client,
		[]string{keyPrefix + bucket},
		r.limitPerSec, r.limitPerSec, nowMillis,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}
	return time.Duration(waitMillis) * time.Millisecond, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
