package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/upl-platform/exam-portal/internal/config"
	"github.com/upl-platform/exam-portal/internal/logger"
	"github.com/upl-platform/exam-portal/internal/response"
)

// RateLimiter is a per-IP fixed-window limiter counted in Redis, so every
// portal instance shares the same budget.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

// NewRateLimiter allows limit requests per window and per client IP.
func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		now:    time.Now,
		log:    logger.Component(log, "rate_limiter"),
	}
}

// Middleware returns a Gin middleware that rate-limits requests by IP.
// Redis failures let the request through.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 {
			c.Next()
			return
		}

		slot := rl.now().UnixNano() / int64(rl.window)
		key := config.CacheKey.RateLimitKey(c.ClientIP(), slot)

		ctx := c.Request.Context()
		pipe := rl.rdb.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, rl.window)
		if _, err := pipe.Exec(ctx); err != nil {
			rl.log.Warn().Err(err).Msg("Rate limit check failed")
			c.Next()
			return
		}

		count := incr.Val()
		remaining := int64(rl.limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(rl.limit) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}
