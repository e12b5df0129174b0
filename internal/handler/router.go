package handler

import (
	"net/http"
	"slices"
	"time"

	"github.com/SergeiKhy/vidlink/internal/middleware"
	"github.com/SergeiKhy/vidlink/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig параметры доступа к маршрутам
type RouterConfig struct {
	APIKeys     map[string]string // пусто: API открыт, вызывающий определяется по IP
	AdminKeys   map[string]string // пусто: /cleanup без проверки
	CORSOrigins []string
}

func NewRouter(
	linkService service.LinkService,
	videoService service.VideoService,
	settingsService service.SettingsService,
	rateLimiter *middleware.RateLimiter,
	callerLimiter *middleware.RateLimiter,
	cfg RouterConfig,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	// Rate limiting для всех запросов
	router.Use(rateLimiter.Middleware())

	linkHandler := NewLinkHandler(linkService, logger)
	videoHandler := NewVideoHandler(videoService, logger)
	settingsHandler := NewSettingsHandler(settingsService, logger)

	// Файловый сервер - без API key проверки
	router.GET("/", linkHandler.Root)
	router.GET("/download/:id", linkHandler.Download)
	router.GET("/info/:id", linkHandler.Info)
	if len(cfg.AdminKeys) > 0 {
		router.DELETE("/cleanup", middleware.RequireAdmin(cfg.AdminKeys), linkHandler.Cleanup)
	} else {
		router.DELETE("/cleanup", linkHandler.Cleanup)
	}

	// API v.1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", HealthCheck)

		// Применяем API Key middleware только к защищенным эндпоинтам
		if len(cfg.APIKeys) > 0 {
			v1.Use(middleware.RequireAPIKey(cfg.APIKeys))
		}

		v1.POST("/videos", callerLimiter.MiddlewareWithKey(middleware.Caller), videoHandler.ProcessVideo)
		v1.GET("/settings", settingsHandler.GetSettings)
		v1.PUT("/settings", settingsHandler.UpdateSettings)
		v1.DELETE("/settings", settingsHandler.ResetSettings)
	}

	return router
}

// HealthCheck проверка работоспособности API
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "vidlink"})
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-API-Key"},
		ExposeHeaders: []string{"Content-Disposition", "Content-Length", "X-Video-Title", "X-Video-Platform", "X-Video-Size"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
