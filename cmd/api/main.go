package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SergeiKhy/linktrack/internal/cache"
	"github.com/SergeiKhy/linktrack/internal/config"
	"github.com/SergeiKhy/linktrack/internal/handler"
	"github.com/SergeiKhy/linktrack/internal/middleware"
	"github.com/SergeiKhy/linktrack/internal/queue"
	"github.com/SergeiKhy/linktrack/internal/repository"
	"github.com/SergeiKhy/linktrack/internal/service"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Подключение к БД (postgres)
	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	if err := repository.Migrate(cfg.DB.URL(), logger); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}

	// Redis опционален: без него гео-кэша нет
	var geoCache repository.GeoCacheRepository
	if cfg.Redis.Enabled() {
		redis, err := repository.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redis.Close()
		logger.Info("Connected to Redis")
		geoCache = repository.NewGeoCacheRepository(redis)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Инициализация репозиториев
	linkRepo := repository.NewLinkRepository(db)
	clickRepo := repository.NewClickRepository(db)

	// Кэш резолвера code -> destination
	urls := cache.New[string](cache.Config{
		DefaultTTL:    cfg.Cache.DefaultTTL,
		SweepInterval: cfg.Cache.SweepInterval,
	}, nil)
	go urls.Run(ctx)

	// Очередь фоновых задач
	jobs := queue.New(queue.Config{
		MaxAttempts:     cfg.Queue.MaxAttempts,
		BaseDelay:       cfg.Queue.BaseDelay,
		Capacity:        cfg.Queue.Capacity,
		JobTimeout:      cfg.Queue.JobTimeout,
		DrainOnShutdown: cfg.Queue.DrainOnShutdown,
	}, logger.Named("queue"), nil)

	// Инициализация сервисов
	var linkOpts []service.LinkOption
	if cfg.Analytics.TitleFetchEnabled {
		linkOpts = append(linkOpts, service.WithTitleFetcher(service.NewTitleFetcher(cfg.Analytics.TitleFetchTimeout)))
	}
	linkService := service.NewLinkService(linkRepo, urls, cfg.Cache.ResolverTTL, logger, linkOpts...)

	geo := service.NewGeoLocator(cfg.Analytics, geoCache, logger)
	if geo == nil {
		logger.Info("Geolocation disabled: GEO_API_TOKEN is empty")
	}
	clicks := service.NewClickRecorder(jobs, linkRepo, clickRepo, geo, linkService, cfg.Analytics.IPHashSalt, logger)
	analytics := service.NewAnalyticsService(linkRepo, clickRepo)

	// Обработчики зарегистрированы, можно запускать
	jobs.Start(ctx)

	// Инициализация middleware
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	}, nil)
	go rateLimiter.Run(ctx)

	var apiKeyMiddleware gin.HandlerFunc
	if len(cfg.Auth.APIKeys) > 0 {
		apiKeyMiddleware = middleware.RequireAPIKey(cfg.Auth.APIKeys)
		logger.Info("API key authentication enabled", zap.Int("keys_count", len(cfg.Auth.APIKeys)))
	}

	// Настройка роутера
	router := handler.NewRouter(handler.Deps{
		Links:       linkService,
		Analytics:   analytics,
		Clicks:      clicks,
		Queue:       jobs,
		RateLimiter: rateLimiter,
		APIKey:      apiKeyMiddleware,
		BaseURL:     cfg.App.BaseURL,
		Logger:      logger,
	})

	// Запуск сервера
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск в горутине
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Новых кликов больше не будет, дописываем очередь
	if err := jobs.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Queue shutdown incomplete", zap.Error(err), zap.Any("stats", jobs.Stats()))
	}

	stop()
	logger.Info("Server exited")
}
