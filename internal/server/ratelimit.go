package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter 抽取发起接口的固定窗口限流, 按调用方身份计数
// Redis 不可用时放行, 限流不成为单点
type RateLimiter struct {
	rdb    *redis.Client
	max    int
	window time.Duration
	logger Logger
}

// NewRateLimiter 创建限流器; max <= 0 时关闭限流
func NewRateLimiter(rdb *redis.Client, max int, window time.Duration, logger Logger) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{rdb: rdb, max: max, window: window, logger: logger}
}

// Middleware gin 中间件
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.rdb == nil || l.max <= 0 {
			c.Next()
			return
		}
		key := fmt.Sprintf("ratelimit:extract:%s", userID(c))
		ctx := c.Request.Context()

		count, err := l.rdb.Incr(ctx, key).Result()
		if err != nil {
			l.logger.Warn("rate limit check failed, allowing request", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			l.rdb.Expire(ctx, key, l.window)
		}
		if count > int64(l.max) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status": "fail",
				"reason": "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
