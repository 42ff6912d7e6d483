package health

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vocalingo/core/internal/pkg/cache"
	"github.com/vocalingo/core/internal/pkg/cron"
	pkgredis "github.com/vocalingo/core/internal/pkg/redis"
	"github.com/vocalingo/core/internal/pkg/response"
	"gorm.io/gorm"
)

const pingTimeout = 2 * time.Second

type cacheStats struct {
	Prefix string `json:"prefix"`
	Keys   int    `json:"keys"`
}

// RegisterRoutes mounts the public health probe plus the admin cron and
// cache endpoints.
func RegisterRoutes(rg *gin.RouterGroup, db *gorm.DB, rc *pkgredis.Client, c *cache.Cache, sched *cron.Scheduler, adminMW gin.HandlerFunc) {
	rg.GET("/health", func(ctx *gin.Context) {
		pctx, cancel := context.WithTimeout(ctx.Request.Context(), pingTimeout)
		defer cancel()

		dbOK := false
		if sqlDB, err := db.DB(); err == nil {
			dbOK = sqlDB.PingContext(pctx) == nil
		}
		redisOK := rc.Raw().Ping(pctx).Err() == nil

		status := "ok"
		code := http.StatusOK
		if !dbOK || !redisOK {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		ctx.JSON(code, gin.H{
			"status":   status,
			"database": dbOK,
			"redis":    redisOK,
		})
	})

	// t2/t3 are receive and send stamps for NTP-style offset estimation by
	// clients that render trainer countdowns.
	rg.GET("/server-time", func(ctx *gin.Context) {
		t2 := time.Now().UnixMilli()
		ctx.JSON(http.StatusOK, gin.H{"t2": t2, "t3": time.Now().UnixMilli()})
	})

	admin := rg.Group("/admin", adminMW)
	cronGroup := admin.Group("/cron")
	{
		cronGroup.GET("", func(ctx *gin.Context) {
			response.OK(ctx, sched.List())
		})

		cronGroup.POST("/run/:name", func(ctx *gin.Context) {
			if err := sched.Run(ctx.Request.Context(), ctx.Param("name")); err != nil {
				response.NotFound(ctx)
				return
			}
			response.OK(ctx, gin.H{"message": "job triggered"})
		})
	}

	cacheGroup := admin.Group("/cache")
	{
		cacheGroup.GET("", func(ctx *gin.Context) {
			out := make([]cacheStats, 0, len(cache.Prefixes))
			for _, p := range cache.Prefixes {
				keys, err := c.Keys(ctx.Request.Context(), p)
				if err != nil {
					response.Error(ctx, err)
					return
				}
				out = append(out, cacheStats{Prefix: p, Keys: len(keys)})
			}
			response.OK(ctx, out)
		})

		cacheGroup.GET("/:prefix", func(ctx *gin.Context) {
			prefix, ok := knownPrefix(ctx)
			if !ok {
				return
			}
			keys, err := c.Keys(ctx.Request.Context(), prefix)
			if err != nil {
				response.Error(ctx, err)
				return
			}
			slices.Sort(keys)
			response.OK(ctx, keys)
		})

		cacheGroup.DELETE("/:prefix", func(ctx *gin.Context) {
			prefix, ok := knownPrefix(ctx)
			if !ok {
				return
			}
			n, err := c.DeletePrefix(ctx.Request.Context(), prefix)
			if err != nil {
				response.Error(ctx, err)
				return
			}
			response.OK(ctx, gin.H{"deleted": n})
		})

		cacheGroup.DELETE("", func(ctx *gin.Context) {
			n, err := c.ClearAll(ctx.Request.Context())
			if err != nil {
				response.Error(ctx, err)
				return
			}
			response.OK(ctx, gin.H{"deleted": n})
		})
	}
}

func knownPrefix(ctx *gin.Context) (string, bool) {
	prefix := ctx.Param("prefix")
	if !slices.Contains(cache.Prefixes, prefix) {
		response.BadRequest(ctx, "unknown cache prefix "+prefix)
		return "", false
	}
	return prefix, true
}
