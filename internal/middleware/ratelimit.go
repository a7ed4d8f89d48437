package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/SergeiKhy/linktrack/internal/cache"
)

// RateLimiterConfig конфигурация rate limiter
type RateLimiterConfig struct {
	RequestsPerSecond float64       // Количество запросов в секунду
	BurstSize         int           // Максимальный размер burst
	CleanupInterval   time.Duration // Интервал очистки неактивных посетителей
}

// DefaultRateLimiterConfig конфигурация по умолчанию
var DefaultRateLimiterConfig = RateLimiterConfig{
	RequestsPerSecond: 10, // 10 запросов в секунду
	BurstSize:         20, // Burst до 20 запросов
	CleanupInterval:   time.Minute,
}

// RateLimiter middleware для ограничения запросов с использованием алгоритма Token Bucket.
// Лимитеры клиентов живут в TTL-кэше и пересоздаются после истечения записи:
// за это время ведро любого клиента успевает наполниться заново.
type RateLimiter struct {
	config   RateLimiterConfig
	visitors *cache.Cache[*rate.Limiter]
}

// NewRateLimiter создаёт rate limiter. Очистку запускает Run.
func NewRateLimiter(config RateLimiterConfig, clk clock.Clock) *RateLimiter {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultRateLimiterConfig.RequestsPerSecond
	}
	if config.BurstSize <= 0 {
		config.BurstSize = DefaultRateLimiterConfig.BurstSize
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultRateLimiterConfig.CleanupInterval
	}

	return &RateLimiter{
		config: config,
		visitors: cache.New[*rate.Limiter](cache.Config{
			DefaultTTL:    config.CleanupInterval * 3,
			SweepInterval: config.CleanupInterval,
		}, clk),
	}
}

// Run периодически удаляет неактивных посетителей до отмены ctx
func (rl *RateLimiter) Run(ctx context.Context) {
	rl.visitors.Run(ctx)
}

// Visitors количество отслеживаемых клиентов
func (rl *RateLimiter) Visitors() int {
	return rl.visitors.Len()
}

// getLimiter возвращает или создаёт rate limiter для ключа
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	limiter, _ := rl.visitors.GetOrSet(key, func() *rate.Limiter {
		return rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize)
	}, 0)
	return limiter
}

// retryAfter секунд до следующего токена, не меньше одной
func (rl *RateLimiter) retryAfter() int {
	return int(math.Max(1, math.Ceil(1/rl.config.RequestsPerSecond)))
}

// Middleware возвращает Gin middleware handler для rate limiting по IP клиента
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return rl.MiddlewareWithKey(nil)
}

// MiddlewareWithKey возвращает rate limiter с кастомным ключом (например, API ключ).
// Пустой ключ или nil getKey означает ограничение по IP.
func (rl *RateLimiter) MiddlewareWithKey(getKey func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key string
		if getKey != nil {
			key = getKey(c)
		}
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		if !rl.getLimiter(key).Allow() {
			retry := rl.retryAfter()
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests, please try again later",
				"retry_after": retry,
			})
			return
		}

		c.Next()
	}
}
