package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	HeaderIdempotence = "x-idempotence"
	idempotenceTTL    = 60 * time.Second
)

// Idempotence rejects a repeated POST/PUT from the same user while the first
// one is in flight, and for a minute after it succeeded.
func Idempotence(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil || (c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut) {
			c.Next()
			return
		}

		key, err := resolveIdempotenceKey(c)
		if err != nil || key == "" {
			c.Next()
			return
		}

		redisKey := fmt.Sprintf("vl:idempotence:%s", key)
		ctx := c.Request.Context()

		val, err := rdb.Get(ctx, redisKey).Result()
		if err == nil {
			msg := "the same request can only succeed once per minute"
			if val == "0" {
				msg = "the same request is still being processed"
			}
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"ok":      0,
				"code":    http.StatusConflict,
				"message": msg,
			})
			return
		}
		if !errors.Is(err, redis.Nil) {
			c.Next()
			return
		}

		if ok, setErr := rdb.SetNX(ctx, redisKey, "0", idempotenceTTL).Result(); setErr != nil || !ok {
			c.Next()
			return
		}

		c.Next()

		status := c.Writer.Status()
		if status >= 200 && status < 300 {
			rdb.Set(ctx, redisKey, "1", redis.KeepTTL)
		} else {
			rdb.Del(ctx, redisKey)
		}
	}
}

// resolveIdempotenceKey prefers the explicit header and otherwise hashes the
// request line, body and acting user.
func resolveIdempotenceKey(c *gin.Context) (string, error) {
	user := CurrentUserID(c)
	if hdr := c.GetHeader(HeaderIdempotence); hdr != "" {
		return user + ":" + hdr, nil
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	if len(body) == 0 && user == "" {
		return "", nil
	}
	if user == "" {
		user = c.ClientIP()
	}

	raw := c.Request.Method + "|" + c.Request.URL.String() + "|" + string(body) + "|" + user
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:]), nil
}
