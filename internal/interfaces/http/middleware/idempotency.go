package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/covenantwatch/internal/config"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

// Idempotency rejects a write whose Idempotency-Key was already seen for the
// same route, so a retried covenant check is not recorded twice.
// Requests without the header pass through. Redis failures fail open.
// The key is released again when the handler fails so the caller may retry.
// Idempotency 拒绝重复的 Idempotency-Key 写请求。
func Idempotency(client redis.UniversalClient, cfg *config.IdempotencyConfig, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || !cfg.Enabled || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}
		idemKey := sanitizeHeader(c.GetHeader(constants.HeaderIdempotencyKey))
		if idemKey == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := "cw:idem:" + c.Request.Method + ":" + c.Request.URL.Path + ":" + idemKey
		isNew, err := client.SetNX(ctx, key, "1", cfg.TTL()).Result()
		if err != nil {
			log.Warn(ctx, "idempotency check failed, allowing request", logger.String("idempotency_key", idemKey), logger.Err(err))
			c.Next()
			return
		}
		if !isNew {
			log.Warn(ctx, "duplicate request rejected", logger.String("idempotency_key", idemKey))
			status, body := errors.ToErrorResponse(errors.ErrConflict("request with this Idempotency-Key was already processed"))
			c.AbortWithStatusJSON(status, body)
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			if err := client.Del(ctx, key).Err(); err != nil {
				log.Warn(ctx, "failed to release idempotency key", logger.String("idempotency_key", idemKey), logger.Err(err))
			}
		}
	}
}
