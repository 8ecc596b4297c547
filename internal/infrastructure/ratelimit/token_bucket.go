// Package ratelimit throttles prediction callers with token buckets, either
// shared through Redis or held in process.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/turtacn/covenantwatch/internal/domain/service"
)

// TokenBucket is a thread-safe token bucket.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	rate       float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// TokenBucketConfig holds the shape shared by every bucket in a pool.
type TokenBucketConfig struct {
	// Capacity is the burst size.
	Capacity float64
	// Rate is the number of tokens added per second.
	Rate float64
}

// FromRequestsPerMinute builds a bucket config from a per-minute budget. A
// non-positive burst defaults to the full minute's budget.
func FromRequestsPerMinute(rpm, burst int) TokenBucketConfig {
	capacity := float64(burst)
	if capacity <= 0 {
		capacity = float64(rpm)
	}
	return TokenBucketConfig{Capacity: capacity, Rate: float64(rpm) / 60.0}
}

// NewTokenBucket creates a full bucket.
func NewTokenBucket(cfg TokenBucketConfig, now func() time.Time) *TokenBucket {
	if now == nil {
		now = time.Now
	}
	return &TokenBucket{
		capacity:   cfg.Capacity,
		tokens:     cfg.Capacity,
		rate:       cfg.Rate,
		lastRefill: now(),
		now:        now,
	}
}

// Take consumes one token. It reports whether the token was available, the
// tokens left afterwards and how long until the next token arrives.
func (tb *TokenBucket) Take() (bool, float64, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true, tb.tokens, 0
	}
	if tb.rate <= 0 {
		return false, tb.tokens, time.Duration(math.MaxInt64)
	}
	wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
	return false, tb.tokens, wait
}

// Available returns the current token count.
func (tb *TokenBucket) Available() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens
}

// refill must be called with the lock held.
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 {
		tb.tokens = math.Min(tb.capacity, tb.tokens+elapsed*tb.rate)
	}
	tb.lastRefill = now
}

// TokenBucketPool keeps one bucket per key and drops idle ones on Cleanup.
type TokenBucketPool struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucketEntry
	config  TokenBucketConfig
	now     func() time.Time
}

type tokenBucketEntry struct {
	bucket   *TokenBucket
	lastUsed time.Time
}

// NewTokenBucketPool creates an empty pool.
func NewTokenBucketPool(cfg TokenBucketConfig, now func() time.Time) *TokenBucketPool {
	if now == nil {
		now = time.Now
	}
	return &TokenBucketPool{
		buckets: make(map[string]*tokenBucketEntry),
		config:  cfg,
		now:     now,
	}
}

// GetOrCreate returns the bucket for key, creating a full one when absent.
func (p *TokenBucketPool) GetOrCreate(key string) *TokenBucket {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.buckets[key]
	if !ok {
		entry = &tokenBucketEntry{bucket: NewTokenBucket(p.config, p.now)}
		p.buckets[key] = entry
	}
	entry.lastUsed = p.now()
	return entry.bucket
}

// Remove drops the bucket for key.
func (p *TokenBucketPool) Remove(key string) {
	p.mu.Lock()
	delete(p.buckets, key)
	p.mu.Unlock()
}

// Cleanup removes buckets unused for longer than maxIdle and returns how
// many were removed.
func (p *TokenBucketPool) Cleanup(maxIdle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-maxIdle)
	removed := 0
	for key, entry := range p.buckets {
		if entry.lastUsed.Before(cutoff) {
			delete(p.buckets, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of live buckets.
func (p *TokenBucketPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets)
}

// LocalRateLimiter is an in-process service.RateLimiter for single-replica
// deployments.
type LocalRateLimiter struct {
	pool *TokenBucketPool
}

var _ service.RateLimiter = (*LocalRateLimiter)(nil)

// NewLocalRateLimiter creates a LocalRateLimiter.
func NewLocalRateLimiter(cfg TokenBucketConfig, now func() time.Time) *LocalRateLimiter {
	return &LocalRateLimiter{pool: NewTokenBucketPool(cfg, now)}
}

// Allow implements service.RateLimiter.
func (l *LocalRateLimiter) Allow(_ context.Context, key string) (*service.RateLimitDecision, error) {
	return takeLocal(l.pool, key), nil
}

// Reset implements service.RateLimiter.
func (l *LocalRateLimiter) Reset(_ context.Context, key string) error {
	l.pool.Remove(key)
	return nil
}

// Cleanup drops idle buckets.
func (l *LocalRateLimiter) Cleanup(maxIdle time.Duration) int {
	return l.pool.Cleanup(maxIdle)
}

func takeLocal(pool *TokenBucketPool, key string) *service.RateLimitDecision {
	allowed, remaining, wait := pool.GetOrCreate(key).Take()
	return &service.RateLimitDecision{
		Allowed:    allowed,
		Limit:      int64(pool.config.Capacity),
		Remaining:  int64(remaining),
		RetryAfter: wait,
	}
}
