package middleware

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

// RateLimit throttles callers by X-Actor, falling back to the client IP.
// A nil limiter disables the middleware. Limiter failures fail open.
func RateLimit(limiter service.RateLimiter, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		key := "ip:" + c.ClientIP()
		if actor := c.GetString(string(constants.ContextKeyActor)); actor != "" {
			key = "actor:" + actor
		}

		decision, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Warn(c.Request.Context(), "rate limiter failed, allowing request", logger.String("key", key), logger.Err(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if !decision.Allowed {
			retry := int64(math.Ceil(decision.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retry, 10))
			log.Warn(c.Request.Context(), "rate limit exceeded", logger.String("key", key))
			status, body := errors.ToErrorResponse(errors.ErrRateLimited(key))
			c.AbortWithStatusJSON(status, body)
			return
		}
		c.Next()
	}
}
