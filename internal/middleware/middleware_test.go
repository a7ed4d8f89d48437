package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/SergeiKhy/linktrack/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func okHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func request(router http.Handler, remoteAddr string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	router.ServeHTTP(w, req)
	return w
}

// TestRateLimiter_Middleware проверяет работу rate limiter middleware
func TestRateLimiter_Middleware(t *testing.T) {
	// Лимит 5 запросов в секунду и burst 5
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: 5,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	}, nil)

	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/test", okHandler)

	// Первые 5 запросов должны пройти (в пределах burst лимита)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, request(router, "192.0.2.1:1234", nil).Code)
	}

	// Следующий запрос ограничен
	w := request(router, "192.0.2.1:1234", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

	// У другого клиента своё ведро
	assert.Equal(t, http.StatusOK, request(router, "192.0.2.2:1234", nil).Code)
	assert.Equal(t, 2, rl.Visitors())
}

// TestRateLimiter_MiddlewareWithKey проверяет rate limiting с кастомным ключом
func TestRateLimiter_MiddlewareWithKey(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: 2,
		BurstSize:         2,
		CleanupInterval:   time.Minute,
	}, nil)

	keyGetter := func(c *gin.Context) string {
		return c.GetHeader("X-User-ID")
	}

	router := gin.New()
	router.Use(rl.MiddlewareWithKey(keyGetter))
	router.GET("/test", okHandler)

	user1 := map[string]string{"X-User-ID": "user1"}

	// Пользователь 1 - первые 2 запроса успешны
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, request(router, "", user1).Code)
	}

	// Пользователь 1 - третий запрос ограничен
	assert.Equal(t, http.StatusTooManyRequests, request(router, "", user1).Code)

	// Пользователь 2 - запрос успешен (другой ключ)
	assert.Equal(t, http.StatusOK, request(router, "", map[string]string{"X-User-ID": "user2"}).Code)
}

// Неактивные посетители удаляются фоновой очисткой
func TestRateLimiter_Cleanup(t *testing.T) {
	mock := clock.NewMock()
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	}, mock)

	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/test", okHandler)

	request(router, "192.0.2.1:1234", nil)
	request(router, "192.0.2.2:1234", nil)
	require.Equal(t, 2, rl.Visitors())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rl.Run(ctx)

	require.Eventually(t, func() bool {
		mock.Add(time.Minute)
		return rl.Visitors() == 0
	}, time.Second, 5*time.Millisecond)
}

// TestAPIKey_Middleware проверяет аутентификацию по API ключу
func TestAPIKey_Middleware(t *testing.T) {
	router := gin.New()
	router.Use(middleware.RequireAPIKey(map[string]string{
		"test-key-1": "Test Key 1",
		"test-key-2": "Test Key 2",
	}))
	router.GET("/test", func(c *gin.Context) {
		name, _ := middleware.APIKeyName(c)
		c.JSON(http.StatusOK, gin.H{"key": name})
	})

	// Без ключа
	w := request(router, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing_api_key")

	// Невалидный ключ
	w = request(router, "", map[string]string{"X-API-Key": "invalid-key"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_api_key")

	// Валидный ключ
	w = request(router, "", map[string]string{"X-API-Key": "test-key-2"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"key":"Test Key 2"`)
}

// TestAPIKey_Middleware_Optional проверяет опциональную аутентификацию
func TestAPIKey_Middleware_Optional(t *testing.T) {
	ak := middleware.NewAPIKey(middleware.APIKeyConfig{
		ValidKeys: map[string]string{"test-key-1": "Test Key 1"},
		Optional:  true,
	})

	router := gin.New()
	router.Use(ak.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"validated": middleware.IsAPIKeyValidated(c)})
	})

	w := request(router, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"validated":false`)

	w = request(router, "", map[string]string{"X-API-Key": "test-key-1"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"validated":true`)
}

// TestAPIKey_Middleware_BearerToken проверяет передачу API ключа через Bearer токен
func TestAPIKey_Middleware_BearerToken(t *testing.T) {
	router := gin.New()
	router.Use(middleware.RequireAPIKey(map[string]string{"test-key-1": "Test Key 1"}))
	router.GET("/test", okHandler)

	w := request(router, "", map[string]string{"Authorization": "Bearer test-key-1"})
	assert.Equal(t, http.StatusOK, w.Code)
}

// Ключ в query строке не принимается
func TestAPIKey_Middleware_QueryParamRejected(t *testing.T) {
	router := gin.New()
	router.Use(middleware.RequireAPIKey(map[string]string{"test-key-1": "Test Key 1"}))
	router.GET("/test", okHandler)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test?api_key=test-key-1", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(middleware.RequestLogger(zap.New(core)))
	router.GET("/test", okHandler)
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	request(router, "", nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "/test", entries[0].ContextMap()["path"])
	assert.Equal(t, int64(http.StatusOK), entries[0].ContextMap()["status"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "/boom", entries[1].ContextMap()["path"])
}
