package app

import (
	"github.com/gin-gonic/gin"
	"github.com/vocalingo/core/internal/middleware"
	"github.com/vocalingo/core/internal/models"
	"github.com/vocalingo/core/internal/modules/ai"
	"github.com/vocalingo/core/internal/modules/evaluation"
	"github.com/vocalingo/core/internal/modules/exam"
	"github.com/vocalingo/core/internal/modules/gateway"
	"github.com/vocalingo/core/internal/modules/health"
	"github.com/vocalingo/core/internal/modules/mastery"
	"github.com/vocalingo/core/internal/modules/settings"
	"github.com/vocalingo/core/internal/modules/user"
	"github.com/vocalingo/core/internal/modules/vocab"
	"github.com/vocalingo/core/internal/pkg/metrics"
	"github.com/vocalingo/core/internal/pkg/response"
)

const apiPrefix = "/api/v1"

func (a *App) registerRoutes() {
	r := a.router
	authMW := middleware.RequireIdentity()
	adminMW := middleware.RequireRole(models.RoleAdmin, models.RoleSuperAdmin)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group(apiPrefix)
	api.GET("", func(c *gin.Context) {
		response.OK(c, gin.H{"name": "vocalingo-core", "version": "1.0.0"})
	})

	health.RegisterRoutes(api, a.db, a.rc, a.svc.cache, a.sched, adminMW)
	gateway.RegisterRoutes(r, api, a.hub, adminMW)

	vocab.NewHandler(a.svc.vocab).RegisterRoutes(api, authMW)
	exam.NewHandler(a.svc.exam).RegisterRoutes(api, authMW)
	mastery.NewHandler(a.svc.mastery).RegisterRoutes(api, authMW)
	evaluation.NewHandler(a.svc.evaluation, a.svc.blobs).RegisterRoutes(api, authMW)
	settings.NewHandler(a.svc.settings).RegisterRoutes(api, authMW, adminMW)
	user.NewHandler(user.NewService(a.db)).RegisterRoutes(api, authMW, adminMW)
	ai.NewHandler(a.svc.ai).RegisterRoutes(api, authMW, adminMW)
}
