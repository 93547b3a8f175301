package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

// fakeClock is advanced by the limiter's sleep so Wait never blocks for real.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	slept  []time.Duration
	cancel bool
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	if c.cancel {
		return context.Canceled
	}
	c.now = c.now.Add(d)
	return nil
}

func newTestLimiter(t *testing.T, limitPerSec int64) (*RedisRateLimiter, *fakeClock, *miniredis.Miniredis) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	limiter, err := newRedisRateLimiter(rdb, limitPerSec, clock.Now, clock.Sleep)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}
	return limiter, clock, mr
}

func TestRedisRateLimiterBurstThenRefill(t *testing.T) {
	t.Parallel()

	limiter, clock, _ := newTestLimiter(t, 2)
	ctx := context.Background()

	steps := []struct {
		advance time.Duration
		want    bool
	}{
		{want: true},
		{want: true},
		{want: false},
		{advance: 250 * time.Millisecond, want: false},
		{advance: 250 * time.Millisecond, want: true},
		{want: false},
		{advance: 5 * time.Second, want: true},
		{want: true},
		{want: false},
	}

	for i, step := range steps {
		clock.Advance(step.advance)
		allowed, err := limiter.Allow(ctx, "sms")
		if err != nil {
			t.Fatalf("step %d: Allow() error = %v", i, err)
		}
		if allowed != step.want {
			t.Fatalf("step %d: Allow() = %v, want %v", i, allowed, step.want)
		}
	}
}

func TestRedisRateLimiterKeysAreIndependent(t *testing.T) {
	t.Parallel()

	limiter, _, mr := newTestLimiter(t, 1)
	ctx := context.Background()

	for _, key := range []string{" SMS ", "balance"} {
		allowed, err := limiter.Allow(ctx, key)
		if err != nil || !allowed {
			t.Fatalf("Allow(%q) = %v, %v, want true", key, allowed, err)
		}
	}
	if allowed, _ := limiter.Allow(ctx, "sms"); allowed {
		t.Fatal("second sms call within the same second was allowed")
	}

	if !mr.Exists(keyPrefix + "sms") {
		t.Fatalf("bucket key missing, have %v", mr.Keys())
	}
	if ttl := mr.TTL(keyPrefix + "sms"); ttl != 2*time.Second {
		t.Fatalf("TTL = %v, want 2s", ttl)
	}
}

func TestRedisRateLimiterWaitSleepsUntilNextToken(t *testing.T) {
	t.Parallel()

	limiter, clock, _ := newTestLimiter(t, 4)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := limiter.Wait(ctx, "sms"); err != nil {
			t.Fatalf("Wait() #%d error = %v", i, err)
		}
	}
	if len(clock.slept) != 0 {
		t.Fatalf("burst slept %v, want no sleep", clock.slept)
	}

	if err := limiter.Wait(ctx, "sms"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(clock.slept) != 1 || clock.slept[0] != 250*time.Millisecond {
		t.Fatalf("slept %v, want [250ms]", clock.slept)
	}
}

func TestRedisRateLimiterWaitStopsOnContext(t *testing.T) {
	t.Parallel()

	limiter, clock, _ := newTestLimiter(t, 1)
	clock.cancel = true

	if err := limiter.Wait(context.Background(), "sms"); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	if err := limiter.Wait(context.Background(), "sms"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestRedisRateLimiterRealSleepHonoursDeadline(t *testing.T) {
	t.Parallel()

	_, rdb := newTestRedis(t)
	limiter, err := NewRedisRateLimiter(rdb, 1)
	if err != nil {
		t.Fatalf("NewRedisRateLimiter() error = %v", err)
	}
	if err := limiter.Wait(context.Background(), "sms"); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, "sms"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRedisRateLimiterRejectsBadInput(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisRateLimiter(nil, 10); err == nil {
		t.Fatal("NewRedisRateLimiter(nil) expected error")
	}

	limiter, _, _ := newTestLimiter(t, 10)
	if _, err := limiter.Allow(context.Background(), "   "); err == nil {
		t.Fatal("Allow(blank key) expected error")
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rdb
}
