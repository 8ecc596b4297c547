package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
	"github.com/turtacn/covenantwatch/pkg/utils"
)

const keyPrefix = "cw:pred:"

// PredictionCache is a two-tier assessment cache. The in-process tier is a
// go-cache map; the optional Redis tier keeps one hash per loan whose fields
// are horizon sets, so a loan can be invalidated with a single DEL.
// PredictionCache 是两级评估缓存：进程内 go-cache 与可选的 Redis 哈希。
type PredictionCache struct {
	local   *gocache.Cache
	client  redis.UniversalClient
	ttl     time.Duration
	metrics service.Metrics
	logger  logger.Logger
}

var _ service.PredictionCache = (*PredictionCache)(nil)

// NewPredictionCache creates the cache. client may be nil for a local-only cache.
func NewPredictionCache(client redis.UniversalClient, ttl, cleanup time.Duration, metrics service.Metrics, log logger.Logger) *PredictionCache {
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	if cleanup <= 0 {
		cleanup = 2 * ttl
	}
	return &PredictionCache{
		local:   gocache.New(ttl, cleanup),
		client:  client,
		ttl:     ttl,
		metrics: metrics,
		logger:  log.WithComponent("PredictionCache"),
	}
}

func hashKey(loanID string) string {
	return keyPrefix + loanID
}

func localKey(loanID, field string) string {
	return loanID + "|" + field
}

// Get returns the cached assessment for the exact horizon list, or (nil, nil).
func (c *PredictionCache) Get(ctx context.Context, loanID string, horizons []int) (*models.RiskAssessment, error) {
	field := utils.JoinInts(horizons)

	if v, ok := c.local.Get(localKey(loanID, field)); ok {
		c.metrics.RecordCacheAccess("local", true)
		return v.(*models.RiskAssessment), nil
	}
	c.metrics.RecordCacheAccess("local", false)

	if c.client == nil {
		return nil, nil
	}

	raw, err := c.client.HGet(ctx, hashKey(loanID), field).Bytes()
	if err != nil {
		if err == redis.Nil {
			c.metrics.RecordCacheAccess("redis", false)
			return nil, nil
		}
		return nil, errors.ErrCacheOperation("get prediction", err)
	}
	c.metrics.RecordCacheAccess("redis", true)

	var assessment models.RiskAssessment
	if err := json.Unmarshal(raw, &assessment); err != nil {
		c.logger.Warn(ctx, "Dropping undecodable cache entry", logger.String("loan_id", loanID), logger.Err(err))
		_ = c.client.HDel(ctx, hashKey(loanID), field).Err()
		return nil, nil
	}
	c.local.SetDefault(localKey(loanID, field), &assessment)
	return &assessment, nil
}

// Set stores the assessment in both tiers under its own horizon list.
func (c *PredictionCache) Set(ctx context.Context, assessment *models.RiskAssessment) error {
	field := utils.JoinInts(assessment.Horizons())
	c.local.SetDefault(localKey(assessment.LoanID, field), assessment)

	if c.client == nil {
		return nil
	}

	payload, err := json.Marshal(assessment)
	if err != nil {
		return errors.ErrCacheOperation("encode prediction", err)
	}
	key := hashKey(assessment.LoanID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, field, payload)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return errors.ErrCacheOperation("set prediction", err)
	}
	return nil
}

// InvalidateLoan drops all horizon sets cached for the loan.
func (c *PredictionCache) InvalidateLoan(ctx context.Context, loanID string) error {
	prefix := localKey(loanID, "")
	for k := range c.local.Items() {
		if strings.HasPrefix(k, prefix) {
			c.local.Delete(k)
		}
	}

	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, hashKey(loanID)).Err(); err != nil {
		return errors.ErrCacheOperation(fmt.Sprintf("invalidate loan %s", loanID), err)
	}
	return nil
}

// Flush clears the in-process tier.
func (c *PredictionCache) Flush() {
	c.local.Flush()
}
