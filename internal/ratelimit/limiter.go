package ratelimit

import "context"

// GatewayKey is the limiter key shared by every outbound SMS.
const GatewayKey = "sms"

// RateLimiter controls outbound gateway throughput per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}
