package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SergeiKhy/linktrack/internal/middleware"
	"github.com/SergeiKhy/linktrack/internal/service"
)

// Deps зависимости HTTP-слоя. RateLimiter, APIKey и Queue опциональны.
type Deps struct {
	Links       service.LinkService
	Analytics   service.AnalyticsService
	Clicks      service.ClickRecorder
	Queue       QueueStats
	RateLimiter *middleware.RateLimiter
	APIKey      gin.HandlerFunc
	BaseURL     string
	Logger      *zap.Logger
}

func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(d.Logger))

	// Rate limiting для всех запросов
	if d.RateLimiter != nil {
		router.Use(d.RateLimiter.Middleware())
	}

	linkHandler := NewLinkHandler(d.Links, d.Clicks, d.BaseURL, d.Logger)
	analyticsHandler := NewAnalyticsHandler(d.Analytics, d.Logger)

	// API v.1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck(d.Queue))

		// Применяем API Key middleware только к защищенным эндпоинтам
		if d.APIKey != nil {
			v1.Use(d.APIKey)
		}

		v1.POST("/links", linkHandler.CreateLink)
		v1.POST("/shorten", linkHandler.CreateLink)
		v1.GET("/links", linkHandler.ListLinks)
		v1.GET("/links/:code", analyticsHandler.GetLink)
		v1.DELETE("/links/:code", linkHandler.DeleteLink)
		v1.GET("/links/:code/stats", analyticsHandler.GetStats)
		v1.GET("/links/:code/stats/daily", analyticsHandler.GetDailyStats)
		v1.GET("/analytics", analyticsHandler.Overview)
	}

	// Редирект (корневой путь) - без API key проверки
	router.GET("/:code", linkHandler.Redirect)

	return router
}
