//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/covenantwatch/internal/config"
	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

// startRedis runs redis:7-alpine and returns a connected RedisConnection.
func startRedis(t *testing.T) *RedisConnection {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, err := dockertest.NewPool("")
	require.NoError(t, err, "could not connect to docker")
	pool.MaxWait = time.Minute

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{Repository: "redis", Tag: "7-alpine"})
	require.NoError(t, err, "could not start redis")
	t.Cleanup(func() { _ = pool.Purge(resource) })

	cfg := &config.RedisConfig{
		Enabled:   true,
		Addresses: []string{fmt.Sprintf("localhost:%s", resource.GetPort("6379/tcp"))},
		PoolSize:  4,
	}
	var conn *RedisConnection
	require.NoError(t, pool.Retry(func() error {
		conn, err = NewRedisConnection(context.Background(), cfg, logger.NewNoopLogger())
		return err
	}))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestRedis_PredictionCacheAcrossInstances(t *testing.T) {
	conn := startRedis(t)
	ctx := context.Background()

	info, err := conn.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, info["connected"])

	writer := NewPredictionCache(conn.Client(), time.Minute, 0, service.NoopMetrics{}, logger.NewNoopLogger())
	reader := NewPredictionCache(conn.Client(), time.Minute, 0, service.NoopMetrics{}, logger.NewNoopLogger())

	require.NoError(t, writer.Set(ctx, sampleAssessment("loan-int", 90, 30)))

	got, err := reader.Get(ctx, "loan-int", []int{90, 30})
	require.NoError(t, err)
	require.NotNil(t, got, "second instance reads through the shared tier")
	assert.Equal(t, []int{90, 30}, got.Horizons())

	ttl := conn.Client().TTL(ctx, hashKey("loan-int")).Val()
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	require.NoError(t, writer.InvalidateLoan(ctx, "loan-int"))
	reader.Flush()
	got, err = reader.Get(ctx, "loan-int", []int{90, 30})
	require.NoError(t, err)
	assert.Nil(t, got)
}
