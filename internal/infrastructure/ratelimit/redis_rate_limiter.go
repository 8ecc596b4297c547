package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

// RedisRateLimiter shares token buckets between replicas through Redis.
type RedisRateLimiter struct {
	client    redis.UniversalClient
	log       logger.Logger
	config    TokenBucketConfig
	keyPrefix string
	fallback  *TokenBucketPool
	now       func() time.Time
}

var _ service.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiterOptions tunes a RedisRateLimiter.
type RedisRateLimiterOptions struct {
	// KeyPrefix namespaces bucket keys. Defaults to "cw:ratelimit".
	KeyPrefix string
	// LocalFallback answers from in-process buckets while Redis is unreachable.
	LocalFallback bool
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// The bucket state lives in a hash {tokens, last_refill}; rate is tokens per second.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(state[1]) or capacity
local last_refill = tonumber(state[2]) or now

local elapsed = math.max(0, now - last_refill)
tokens = math.min(capacity, tokens + elapsed * rate / 1000)

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

local retry_ms = 0
if allowed == 0 and rate > 0 then
    retry_ms = math.ceil((1 - tokens) / rate * 1000)
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'last_refill', tostring(now))
local full_ms = 0
if rate > 0 then
    full_ms = math.ceil((capacity - tokens) / rate * 1000)
end
redis.call('PEXPIRE', key, full_ms + 60000)

return {allowed, math.floor(tokens), retry_ms}
`)

// NewRedisRateLimiter creates a RedisRateLimiter.
func NewRedisRateLimiter(client redis.UniversalClient, cfg TokenBucketConfig, opts RedisRateLimiterOptions, log logger.Logger) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, errors.ErrInvalidRequest("redis client is required")
	}
	if cfg.Capacity <= 0 || cfg.Rate <= 0 {
		return nil, errors.ErrInvalidRequest("rate limit capacity and rate must be positive")
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "cw:ratelimit"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	rl := &RedisRateLimiter{
		client:    client,
		log:       log.WithComponent("RedisRateLimiter"),
		config:    cfg,
		keyPrefix: opts.KeyPrefix,
		now:       opts.Now,
	}
	if opts.LocalFallback {
		rl.fallback = NewTokenBucketPool(cfg, opts.Now)
	}

	rl.log.Info(context.Background(), "Redis rate limiter initialized",
		logger.Float64("capacity", cfg.Capacity),
		logger.Float64("rate_per_second", cfg.Rate),
		logger.Bool("local_fallback", opts.LocalFallback),
	)
	return rl, nil
}

// Allow implements service.RateLimiter.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (*service.RateLimitDecision, error) {
	redisKey := rl.buildKey(key)
	res, err := tokenBucketScript.Run(ctx, rl.client, []string{redisKey},
		rl.config.Capacity, rl.config.Rate, rl.now().UnixMilli()).Int64Slice()
	if err == nil && len(res) != 3 {
		err = fmt.Errorf("unexpected script result length %d", len(res))
	}
	if err != nil {
		if rl.fallback != nil {
			rl.log.Warn(ctx, "rate limiter falling back to local buckets", logger.String("key", key), logger.Err(err))
			return takeLocal(rl.fallback, key), nil
		}
		return nil, errors.WrapError(err, errors.ErrCodeServiceUnavailable, "rate limiter unavailable")
	}

	return &service.RateLimitDecision{
		Allowed:    res[0] == 1,
		Limit:      int64(rl.config.Capacity),
		Remaining:  res[1],
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// Reset implements service.RateLimiter.
func (rl *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	if rl.fallback != nil {
		rl.fallback.Remove(key)
	}
	if err := rl.client.Del(ctx, rl.buildKey(key)).Err(); err != nil {
		return errors.WrapError(err, errors.ErrCodeServiceUnavailable, "rate limiter unavailable")
	}
	return nil
}

func (rl *RedisRateLimiter) buildKey(key string) string {
	return rl.keyPrefix + ":" + key
}
