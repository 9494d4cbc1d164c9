// Package app 提供应用程序的初始化和配置功能.
package app

import (
	contextPkg "context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yeisme/transvault/pkg/api"
	"github.com/yeisme/transvault/pkg/audio"
	appcache "github.com/yeisme/transvault/pkg/cache"
	"github.com/yeisme/transvault/pkg/configs"
	"github.com/yeisme/transvault/pkg/context"
	"github.com/yeisme/transvault/pkg/internal/jobs"
	"github.com/yeisme/transvault/pkg/internal/service"
	"github.com/yeisme/transvault/pkg/internal/storage"
	"github.com/yeisme/transvault/pkg/log"
	"github.com/yeisme/transvault/pkg/metrics"
	"github.com/yeisme/transvault/pkg/middleware"
	"github.com/yeisme/transvault/pkg/scheduler"
	"github.com/yeisme/transvault/pkg/tracing"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	Engine *gin.Engine
	config *configs.AppConfig

	manager  *storage.Manager
	registry *service.Registry
	sched    *scheduler.Scheduler
	queue    *jobs.Queue
}

func NewApp(configPath string) *App {
	ctx := contextPkg.Background()
	engine := gin.New()

	// 初始化配置
	if err := configs.InitConfig(configPath); err != nil {
		fmt.Printf("Error initializing config: %v\n", err)
		os.Exit(1)
	}

	// 初始化追踪
	config := configs.GetConfig()
	if err := tracing.InitTracer(config.Tracing); err != nil {
		fmt.Printf("Error initializing tracing: %v\n", err)
		os.Exit(1)
	}

	// 初始化监控
	if err := metrics.InitMetrics(config.Metrics); err != nil {
		fmt.Printf("Error initializing metrics: %v\n", err)
		os.Exit(1)
	}

	manager, err := storage.Init(ctx)
	if err != nil {
		fmt.Printf("Error initializing storage: %v\n", err)
		os.Exit(1)
	}

	baseCtx := context.WithStorageManager(ctx, manager)

	// 装配核心服务与音频探测器
	prober := audio.NewProber(config.Storage.FFprobePath)
	registry := service.NewRegistry(baseCtx, prober)

	// 启动时恢复中断的迁移：超龄标记失败，其余重新纳入管理
	if err := registry.Hybrid.RecoverActiveMigrations(baseCtx); err != nil {
		log.Logger().Warn().Err(err).Msg("failed to recover active migrations")
	}

	sched, err := scheduler.NewScheduler()
	if err != nil {
		fmt.Printf("Error initializing scheduler: %v\n", err)
		os.Exit(1)
	}

	if err := jobs.RegisterCronJobs(sched, manager, registry); err != nil {
		fmt.Printf("Error registering cron jobs: %v\n", err)
		os.Exit(1)
	}

	queue := jobs.NewQueue(config.Storage, registry, prober)

	l := log.Logger()
	gin.DefaultWriter = log.NewGinWriter(l, zerolog.InfoLevel)
	gin.DefaultErrorWriter = log.NewGinWriter(l, zerolog.ErrorLevel)

	engine.Use(
		gin.Recovery(),
		middleware.GinLoggerMiddleware(),
		middleware.CORSMiddleware(config.Server),
		gzip.Gzip(gzip.DefaultCompression),
		middleware.TracingMiddleware(),
		middleware.PrometheusMiddleware(),
		middleware.RateLimitMiddleware(config.RateLimit),
		middleware.CircuitBreakerMiddleware(config.CircuitBreaker),
		middleware.StorageMiddleware(manager),
		middleware.RegistryMiddleware(registry),
		middleware.SchedulerMiddleware(sched),
		middleware.JobsQueueMiddleware(queue),
		cacheMiddleware(manager),
	)

	if config.Metrics.Enabled {
		_ = metrics.StartMetricsServer(config.Metrics, engine)
	}

	api.RegisterGroup(engine)

	return &App{
		Engine:   engine,
		config:   config,
		manager:  manager,
		registry: registry,
		sched:    sched,
		queue:    queue,
	}
}

// cacheMiddleware 只缓存磁盘信息与层级建议这类幂等只读端点.
func cacheMiddleware(manager *storage.Manager) gin.HandlerFunc {
	cfg := middleware.DefaultCacheConfig(appcache.NewCache(manager.GetKVClient()))
	cfg.VaryHeaders = []string{"X-User"}
	cfg.Skipper = func(c *gin.Context) bool {
		path := c.Request.URL.Path

		return !strings.HasPrefix(path, "/api/v1/storage/system") &&
			!strings.HasPrefix(path, "/api/v1/storage/recommendation")
	}

	return middleware.CacheMiddleware(cfg)
}

// Run 启动HTTP服务与后台组件，收到 SIGINT/SIGTERM 后优雅退出.
func (a *App) Run() error {
	a.sched.Start()
	a.queue.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port),
		Handler:           a.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Logger().Info().Str("addr", srv.Addr).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.shutdownBackground()

		return err
	case sig := <-quit:
		log.Logger().Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := contextPkg.WithTimeout(contextPkg.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(ctx)

	a.shutdownBackground()

	return err
}

// shutdownBackground 依次停掉任务队列、调度器与存储连接.
func (a *App) shutdownBackground() {
	a.queue.Stop()

	if err := a.sched.Stop(); err != nil {
		log.Logger().Warn().Err(err).Msg("scheduler stop failed")
	}

	if err := a.manager.Close(); err != nil {
		log.Logger().Warn().Err(err).Msg("storage close failed")
	}
}
