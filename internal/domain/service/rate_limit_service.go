package service

import (
	"context"
	"time"
)

// RateLimitDecision is the outcome of a single rate limit check.
type RateLimitDecision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// RateLimiter throttles callers identified by an opaque key.
// RateLimiter 按调用方标识进行限流。
//
//go:generate mockery --name RateLimiter --output mocks --outpkg mocks
type RateLimiter interface {
	// Allow consumes one token for key.
	// Allow 为 key 消耗一个令牌。
	Allow(ctx context.Context, key string) (*RateLimitDecision, error)

	// Reset forgets the state held for key.
	Reset(ctx context.Context, key string) error
}
