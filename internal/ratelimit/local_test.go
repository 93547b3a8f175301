package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLocalRateLimiterAllowBurst(t *testing.T) {
	t.Parallel()

	limiter := NewLocalRateLimiter(2)

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(context.Background(), GatewayKey)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}

	allowed, err := limiter.Allow(context.Background(), GatewayKey)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Fatal("third call should be rejected by rate limit")
	}
}

func TestLocalRateLimiterKeysAreIndependent(t *testing.T) {
	t.Parallel()

	limiter := NewLocalRateLimiter(1)

	if allowed, _ := limiter.Allow(context.Background(), "SMS"); !allowed {
		t.Fatal("sms should be allowed on first request")
	}
	if allowed, _ := limiter.Allow(context.Background(), "resend"); !allowed {
		t.Fatal("resend should be allowed on first request")
	}
	if allowed, _ := limiter.Allow(context.Background(), "sms"); allowed {
		t.Fatal("keys are case-insensitive, second sms request should be rejected")
	}
}

func TestLocalRateLimiterEmptyKey(t *testing.T) {
	t.Parallel()

	if _, err := NewLocalRateLimiter(1).Allow(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestLocalRateLimiterWaitContextDeadline(t *testing.T) {
	t.Parallel()

	limiter := NewLocalRateLimiter(1)
	if err := limiter.Wait(context.Background(), GatewayKey); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, GatewayKey); err == nil {
		t.Fatal("expected Wait() to fail before the next token")
	}
}
