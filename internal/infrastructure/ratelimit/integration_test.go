//go:build integration

package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/covenantwatch/pkg/logger"
)

func TestRedisRateLimiter_RealRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, err := dockertest.NewPool("")
	require.NoError(t, err, "could not connect to docker")
	pool.MaxWait = time.Minute

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{Repository: "redis", Tag: "7-alpine"})
	require.NoError(t, err, "could not start redis")
	t.Cleanup(func() { _ = pool.Purge(resource) })

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("localhost:%s", resource.GetPort("6379/tcp"))})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, pool.Retry(func() error {
		return client.Ping(context.Background()).Err()
	}))

	// The Lua script runs on a real server here, not miniredis.
	clock := newFakeClock()
	rl, err := NewRedisRateLimiter(client, tightBudget, RedisRateLimiterOptions{Now: clock.Now}, logger.NewNoopLogger())
	require.NoError(t, err)
	exerciseLimiter(t, rl, clock)
}
