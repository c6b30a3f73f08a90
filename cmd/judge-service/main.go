package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"nitz/internal/common/cache"
	"nitz/internal/common/db"
	commonmw "nitz/internal/common/http/middleware"
	"nitz/internal/common/mq"
	"nitz/internal/common/storage"
	"nitz/internal/judge/controller"
	"nitz/internal/judge/limiter"
	judgemw "nitz/internal/judge/middleware"
	"nitz/internal/judge/repository"
	"nitz/internal/judge/sandbox"
	"nitz/internal/judge/sandbox/engine"
	"nitz/internal/judge/sandbox/observer"
	"nitz/internal/judge/sandbox/profile"
	"nitz/internal/judge/sandbox/runner"
	"nitz/internal/judge/sandbox/workspace"
	"nitz/internal/judge/service"
	"nitz/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_service.yaml"

var defaultEditorRoles = []string{"moderator", "admin"}

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envFile := flag.String("env", ".env", "Optional dotenv file applied before env overrides")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "judge service stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	registry, err := profile.NewRegistry(appCfg.Languages)
	if err != nil {
		return fmt.Errorf("init language registry: %w", err)
	}

	database, err := db.Open(appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer func() {
		_ = database.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	checks := []controller.HealthCheck{
		{Name: "database", Check: database.Ping},
		{Name: "redis", Check: redisCache.Ping},
	}

	var archive repository.SourceArchive
	if appCfg.MinIO.Enabled() {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			return fmt.Errorf("init minio: %w", err)
		}
		bucket := appCfg.Judge.SourceBucket
		if err := objStorage.EnsureBucket(ctx, bucket); err != nil {
			return fmt.Errorf("init source bucket: %w", err)
		}
		archive = repository.NewObjectSourceArchive(objStorage, bucket)
		checks = append(checks, controller.HealthCheck{Name: "minio", Check: func(ctx context.Context) error {
			return objStorage.EnsureBucket(ctx, bucket)
		}})
	} else {
		logger.Warn(ctx, "minio not configured, source archive disabled")
	}

	var publisher repository.OutcomePublisher
	if appCfg.Kafka.enabled() {
		mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
		if err != nil {
			return fmt.Errorf("init kafka: %w", err)
		}
		defer func() {
			_ = mqClient.Close()
		}()
		publisher = repository.NewMQOutcomePublisher(mqClient, appCfg.Kafka.OutcomeTopic)
		checks = append(checks, controller.HealthCheck{Name: "kafka", Check: mqClient.Ping})
	} else {
		logger.Warn(ctx, "kafka not configured, outcome events disabled")
	}

	eng, err := engine.NewEngine(appCfg.Sandbox.toEngineConfig(), registry)
	if err != nil {
		return fmt.Errorf("init sandbox engine: %w", err)
	}
	ws, err := workspace.NewManager(appCfg.Worker.WorkRoot)
	if err != nil {
		return fmt.Errorf("init workspace: %w", err)
	}
	admission := limiter.New(appCfg.Limiter)
	counters := observer.NewCounters()
	policy, _ := sandbox.ParsePolicy(appCfg.Worker.Policy)
	worker := sandbox.NewWorker(
		runner.NewRunnerWithObserver(eng, counters),
		registry,
		ws,
		eng,
		appCfg.Worker.toSandboxConfig(policy),
	)

	judgeSvc, err := service.NewService(service.Config{
		Judge:          worker,
		Registry:       registry,
		Limiter:        admission,
		Problems:       repository.NewProblemRepository(database, redisCache, appCfg.CacheTTL.Problem, appCfg.CacheTTL.Empty),
		StarterCode:    repository.NewStarterCodeRepository(database, redisCache, appCfg.CacheTTL.StarterCode),
		Submissions:    repository.NewSubmissionRepository(database),
		StatusRepo:     repository.NewStatusRepository(redisCache, appCfg.CacheTTL.Status),
		Publisher:      publisher,
		Archive:        archive,
		MaxCodeBytes:   appCfg.Judge.MaxCodeBytes,
		WorkerTimeout:  appCfg.Judge.WorkerTimeout,
		ProblemTimeout: appCfg.Judge.ProblemTimeout,
		StatusTimeout:  appCfg.Judge.StatusTimeout,
		PersistTimeout: appCfg.Judge.PersistTimeout,
	})
	if err != nil {
		return fmt.Errorf("init judge service: %w", err)
	}
	worker.SetStatusReporter(judgeSvc)
	worker.SetSlotPool(admission)

	roles := appCfg.Auth.Roles
	if len(roles) == 0 {
		roles = defaultEditorRoles
	}
	verifier := judgemw.NewTokenVerifier(appCfg.Auth.JWTSecret, appCfg.Auth.JWTIssuer)
	if verifier == nil {
		logger.Warn(ctx, "auth secret not configured, starter code edits are unauthenticated")
	}

	rateLimiter := judgemw.NewRateLimiter(redisCache, appCfg.RateLimit)
	if rateLimiter == nil {
		logger.Info(ctx, "execute rate limit disabled")
	}

	httpServer := buildHTTPServer(appCfg, judgeSvc, routeOptions{
		guard:       judgemw.RequireRole(verifier, roles),
		rateLimiter: rateLimiter,
		checks:      checks,
	})
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "judge http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.Int("slots", appCfg.Limiter.Slots),
			zap.Int("languages", len(registry.Languages())),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	logger.Info(ctx, "sandbox totals", zap.Any("counters", counters.Snapshot()))
	return nil
}

type routeOptions struct {
	guard       gin.HandlerFunc
	rateLimiter *judgemw.RateLimiter
	checks      []controller.HealthCheck
}

func buildHTTPServer(appCfg *AppConfig, svc controller.JudgeService, opts routeOptions) *http.Server {
	cfg := appCfg.Server
	router := gin.New()
	router.Use(commonmw.Recovery())
	router.Use(commonmw.CORS(appCfg.CORS))
	router.Use(commonmw.TraceContextMiddlewareWithConfig(commonmw.TraceConfig{TrustUserIDHeader: cfg.TrustUserIDHeader}))
	router.Use(commonmw.RequestLogger())

	controller.NewJudgeController(svc, cfg.MaxBodyBytes).
		WithHealthChecks(opts.checks...).
		WithExecuteMiddleware(judgemw.RateLimit(opts.rateLimiter, "execute")).
		RegisterRoutes(router, opts.guard)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
