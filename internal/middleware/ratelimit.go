package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const rateLimitWindow = time.Second

// RateLimit caps requests per identity (or client IP when anonymous) within a
// one-second window. Redis errors let the request through.
func RateLimit(rdb *redis.Client, max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil || max <= 0 {
			c.Next()
			return
		}
		who := CurrentUserID(c)
		if who == "" {
			who = "ip:" + c.ClientIP()
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("vl:rate_limit:%s:%d", who, time.Now().Unix())

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rdb.PExpire(ctx, key, rateLimitWindow+time.Second)
		}
		if count > max {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"ok":      0,
				"code":    http.StatusTooManyRequests,
				"message": "too many requests, slow down",
			})
			return
		}
		c.Next()
	}
}
