package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/vidlink/internal/config"
	"github.com/SergeiKhy/vidlink/internal/extractor"
	"github.com/SergeiKhy/vidlink/internal/fetcher"
	"github.com/SergeiKhy/vidlink/internal/handler"
	applog "github.com/SergeiKhy/vidlink/internal/logger"
	"github.com/SergeiKhy/vidlink/internal/middleware"
	"github.com/SergeiKhy/vidlink/internal/repository"
	"github.com/SergeiKhy/vidlink/internal/service"
	"github.com/SergeiKhy/vidlink/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, err := applog.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	gin.SetMode(cfg.App.GinMode)

	// Хранилище файлов
	store := storage.New(cfg.Storage.VideosDir, cfg.Storage.ScratchDir, logger)
	if err := store.EnsureDirs(); err != nil {
		logger.Fatal("Failed to create storage dirs", zap.Error(err))
	}
	// Временные файлы прошлого запуска никому не принадлежат
	if n, err := store.PurgeScratch(); err != nil {
		logger.Warn("Failed to purge scratch dir", zap.Error(err))
	} else if n > 0 {
		logger.Info("Scratch dir purged", zap.Int("files", n))
	}

	// Реестр ссылок
	linkRepo, err := repository.NewLinkRepository(cfg.Storage.LinksDB, store, repository.WithLogger(logger))
	if err != nil {
		logger.Fatal("Failed to open link registry", zap.Error(err))
	}
	logger.Info("Link registry loaded", zap.String("path", cfg.Storage.LinksDB), zap.Int("links", linkRepo.Len()))

	// Хранилище настроек
	var settingsRepo repository.SettingsRepository
	switch cfg.Settings.Backend {
	case "redis":
		redis, err := repository.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redis.Close()
		logger.Info("Connected to Redis")
		settingsRepo = repository.NewRedisSettingsRepository(redis)
	case "memory", "":
		settingsRepo = repository.NewMemorySettingsRepository()
	default:
		logger.Fatal("Unknown settings backend", zap.String("backend", cfg.Settings.Backend))
	}

	// Экстрактор видео
	var ext extractor.Extractor
	switch cfg.Fetch.Extractor {
	case "ytdlp":
		ext = extractor.NewYTDLP(cfg.Fetch.YTDLPPath, logger)
	case "http":
		ext = extractor.NewHTTP(extractor.NewHTTPClient(), logger)
	default:
		logger.Fatal("Unknown extractor", zap.String("extractor", cfg.Fetch.Extractor))
	}
	logger.Info("Extractor selected", zap.String("extractor", cfg.Fetch.Extractor))

	// Инициализация сервисов
	settingsService := service.NewSettingsService(settingsRepo, service.Limits{
		DefaultMaxSize:    cfg.Limits.MaxServerSize,
		MaxSizeLimit:      cfg.Limits.MaxServerSizeLimit,
		DirectSize:        cfg.Limits.DirectSize,
		DefaultTTLMinutes: cfg.Links.DefaultTTLMinutes,
		MaxTTLMinutes:     cfg.Links.MaxTTLMinutes,
	}, logger)

	videoService := service.NewVideoService(
		fetcher.New(ext, store, cfg.Fetch.PollInterval, logger),
		store,
		linkRepo,
		settingsService,
		service.VideoConfig{
			BaseURL:        cfg.App.BaseURL,
			AllowedDomains: cfg.Fetch.AllowedDomains,
			Formats:        cfg.Fetch.Formats,
		},
		logger,
	)

	linkService := service.NewLinkService(linkRepo, store, cfg.Storage.OrphanGrace, logger)

	// Инициализация middleware
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	})
	defer rateLimiter.Close()

	// Скачивание дорогое: вызывающему не больше запроса в секунду
	callerLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: 1,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	})
	defer callerLimiter.Close()

	if len(cfg.Auth.APIKeys) > 0 {
		logger.Info("API key authentication enabled", zap.Int("keys_count", len(cfg.Auth.APIKeys)))
	}
	if len(cfg.Auth.AdminKeys) == 0 {
		logger.Warn("ADMIN_KEYS not set, /cleanup is open")
	}

	// Настройка роутера
	router := handler.NewRouter(linkService, videoService, settingsService, rateLimiter, callerLimiter,
		handler.RouterConfig{
			APIKeys:     cfg.Auth.APIKeys,
			AdminKeys:   cfg.Auth.AdminKeys,
			CORSOrigins: cfg.App.CORSOrigins,
		}, logger)

	// Запуск сервера. WriteTimeout не задан: скачивание и отдача больших файлов длятся минутами
	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Запуск в горутине
	go func() {
		logger.Info("Server starting",
			zap.String("port", cfg.App.Port),
			zap.String("base_url", cfg.App.BaseURL),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		_ = srv.Close()
	}

	logger.Info("Server exited")
}
