package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/vocalingo/core/internal/config"
	"github.com/vocalingo/core/internal/database"
	"github.com/vocalingo/core/internal/middleware"
	"github.com/vocalingo/core/internal/modules/ai"
	"github.com/vocalingo/core/internal/modules/evaluation"
	"github.com/vocalingo/core/internal/modules/exam"
	"github.com/vocalingo/core/internal/modules/gateway"
	"github.com/vocalingo/core/internal/modules/mastery"
	"github.com/vocalingo/core/internal/modules/settings"
	"github.com/vocalingo/core/internal/modules/vocab"
	"github.com/vocalingo/core/internal/pkg/blobstore"
	"github.com/vocalingo/core/internal/pkg/cache"
	"github.com/vocalingo/core/internal/pkg/cluster"
	pkgcron "github.com/vocalingo/core/internal/pkg/cron"
	"github.com/vocalingo/core/internal/pkg/mq"
	"github.com/vocalingo/core/internal/pkg/quota"
	pkgredis "github.com/vocalingo/core/internal/pkg/redis"
	"github.com/vocalingo/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// services groups the domain services routes and jobs are built from.
type services struct {
	settings   *settings.Service
	ai         *ai.Client
	vocab      *vocab.Service
	mastery    *mastery.Service
	exam       *exam.Service
	evaluation *evaluation.Service
	tasks      *taskqueue.Service
	blobs      blobstore.Store
	cache      *cache.Cache
}

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	rc     *pkgredis.Client
	queue  mq.Queue
	hub    *gateway.Hub
	worker *evaluation.Worker
	sched  *pkgcron.Scheduler
	svc    services
	logger *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New initializes the application: config → DB → Redis → broker → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	blobs, err := blobstore.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	queue, err := mq.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, cfg.RabbitMQ.DeadLetter, logger)
	if err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("rabbitmq: %w", err)
	}

	a := &App{cfg: cfg, db: db, rc: rc, queue: queue, logger: logger}
	a.wire(blobs)
	a.router = a.newRouter()
	a.registerRoutes()
	a.start()
	return a, nil
}

func (a *App) wire(blobs blobstore.Store) {
	cfg, logger := a.cfg, a.logger

	c := cache.New(a.rc, cache.WithLogger(logger), cache.WithTTLs(cache.TTLs{
		List:      cfg.Cache.ListTTL,
		Random:    cfg.Cache.RandomTTL,
		Aggregate: cfg.Cache.AggregateTTL,
		Reference: cfg.Cache.ReferenceTTL,
	}))
	gate := quota.New(a.rc, logger, cfg.Quota.BypassRoles...)

	settingsSvc := settings.NewService(a.db)
	aiClient := ai.NewClient(ai.NewRegistry(cfg.AI), settingsSvc, cfg.AI, logger)
	tasks := taskqueue.NewService(a.rc)
	masterySvc := mastery.NewService(a.db, c, logger)
	examSvc := exam.NewService(a.db, c, masterySvc, cfg.Exam, logger)

	a.hub = gateway.NewHub(a.rc, logger)
	pipeline := evaluation.NewPipeline(blobs, aiClient, examSvc, masterySvc, a.hub, tasks, logger)
	a.worker = evaluation.NewWorker(a.queue, pipeline, tasks, cfg.Worker.Concurrency, cfg.RabbitMQ.MaxAttempts, logger)

	a.svc = services{
		settings:   settingsSvc,
		ai:         aiClient,
		vocab:      vocab.NewService(a.db, c, gate, cfg.Quota, logger),
		mastery:    masterySvc,
		exam:       examSvc,
		evaluation: evaluation.NewService(tasks, a.queue, examSvc, aiClient, logger),
		tasks:      tasks,
		blobs:      blobs,
		cache:      c,
	}
	a.sched = pkgcron.New(logger)
}

func (a *App) newRouter() *gin.Engine {
	if a.cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
		if !cluster.ShouldLogBootstrap() {
			gin.DebugPrintRouteFunc = func(string, string, string, int) {}
			gin.DebugPrintFunc = func(string, ...interface{}) {}
		}
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(a.logger))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", middleware.HeaderUserID, middleware.HeaderIdempotence},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
	if len(a.cfg.AllowedOrigins) > 0 && !a.cfg.IsDev() {
		corsConfig.AllowOriginFunc = allowOrigins(a.cfg.AllowedOrigins)
	} else {
		corsConfig.AllowOriginFunc = func(origin string) bool { return true }
	}
	router.Use(cors.New(corsConfig))
	router.Use(middleware.Identity(a.db))
	if a.cfg.RateLimit > 0 {
		router.Use(middleware.RateLimit(a.rc.Raw(), a.cfg.RateLimit))
	}
	router.Use(middleware.Idempotence(a.rc.Raw()))
	return router
}

// start launches the gateway hub, the evaluation worker and, on the primary
// replica, the scheduler.
func (a *App) start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.hub.Run(ctx)
	}()

	if a.cfg.Worker.Disabled {
		a.logger.Info("evaluation worker disabled")
	} else {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("evaluation worker stopped", zap.Error(err))
			}
		}()
	}

	if cluster.ShouldRunCron() {
		registerCronJobs(a.sched, a.svc, a.logger)
		a.sched.Start(ctx)
	}
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background goroutines, waits for in-flight jobs, then
// closes the broker and Redis connections.
func (a *App) Shutdown(ctx context.Context) error {
	a.cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("background workers did not stop in time")
	}

	var errs []error
	if err := a.queue.Close(); err != nil {
		errs = append(errs, fmt.Errorf("rabbitmq: %w", err))
	}
	if err := a.rc.Close(); err != nil {
		errs = append(errs, fmt.Errorf("redis: %w", err))
	}
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errors.Join(errs...)
}
