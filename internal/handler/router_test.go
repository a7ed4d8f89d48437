package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SergeiKhy/linktrack/internal/cache"
	"github.com/SergeiKhy/linktrack/internal/handler"
	"github.com/SergeiKhy/linktrack/internal/middleware"
	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/SergeiKhy/linktrack/internal/queue"
	"github.com/SergeiKhy/linktrack/internal/service"
	"github.com/SergeiKhy/linktrack/internal/service/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// recorderStub запоминает клики вместо постановки в очередь
type recorderStub struct {
	mu    sync.Mutex
	codes []string
	uas   []string
}

func (r *recorderStub) Record(code string, headers http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
	r.uas = append(r.uas, headers.Get("User-Agent"))
}

func (r *recorderStub) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.codes...)
}

type queueStub struct{}

func (queueStub) Stats() queue.Stats {
	return queue.Stats{Pending: 2, Completed: 5}
}

// analyticsStub запоминает запрошенное число дней
type analyticsStub struct {
	service.AnalyticsService
	days int
}

func (a *analyticsStub) GetDailyStats(ctx context.Context, code string, days int) ([]models.DailyClickStats, error) {
	a.days = days
	return []models.DailyClickStats{}, nil
}

type testServer struct {
	router   *gin.Engine
	linkRepo *mocks.MockLinkRepository
	clicks   *recorderStub
}

type serverOption func(*handler.Deps)

func setupServer(opts ...serverOption) *testServer {
	linkRepo := mocks.NewMockLinkRepository()
	clickRepo := mocks.NewMockClickRepository(linkRepo)
	urls := cache.New[string](cache.Config{}, nil)
	clicks := &recorderStub{}

	deps := handler.Deps{
		Links:     service.NewLinkService(linkRepo, urls, time.Minute, zap.NewNop()),
		Analytics: service.NewAnalyticsService(linkRepo, clickRepo),
		Clicks:    clicks,
		Queue:     queueStub{},
		Logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &testServer{
		router:   handler.NewRouter(deps),
		linkRepo: linkRepo,
		clicks:   clicks,
	}
}

func (s *testServer) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	s := setupServer()

	w := s.do(http.MethodGet, "/api/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[handler.HealthResponse](t, w)
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Queue)
	assert.Equal(t, 2, resp.Queue.Pending)
	assert.Equal(t, uint64(5), resp.Queue.Completed)
}

func TestCreateLink(t *testing.T) {
	s := setupServer()

	w := s.do(http.MethodPost, "/api/v1/links", map[string]any{"url": "https://example.com/page"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decode[handler.CreateLinkResponse](t, w)
	assert.Len(t, resp.ShortCode, 7)
	assert.Equal(t, "https://example.com/page", resp.OriginalURL)
	// httptest ставит Host example.com
	assert.Equal(t, "https://example.com/"+resp.ShortCode, resp.ShortURL)
	assert.Nil(t, resp.ExpiresAt)
}

func TestCreateLink_ShortenAliasRoute(t *testing.T) {
	s := setupServer()

	w := s.do(http.MethodPost, "/api/v1/shorten", map[string]any{
		"url":          "https://example.com",
		"custom_alias": "my-link",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decode[handler.CreateLinkResponse](t, w)
	assert.Equal(t, "my-link", resp.ShortCode)
	require.NotNil(t, resp.CustomAlias)
	assert.Equal(t, "my-link", *resp.CustomAlias)
}

func TestCreateLink_ShortURL(t *testing.T) {
	body := map[string]any{"url": "https://example.com", "custom_alias": "abc"}

	t.Run("base url from config", func(t *testing.T) {
		s := setupServer(func(d *handler.Deps) { d.BaseURL = "https://sho.rt" })
		resp := decode[handler.CreateLinkResponse](t, s.do(http.MethodPost, "/api/v1/links", body, nil))
		assert.Equal(t, "https://sho.rt/abc", resp.ShortURL)
	})

	t.Run("forwarded proto", func(t *testing.T) {
		s := setupServer()
		resp := decode[handler.CreateLinkResponse](t, s.do(http.MethodPost, "/api/v1/links", body,
			map[string]string{"X-Forwarded-Proto": "http"}))
		assert.Equal(t, "http://example.com/abc", resp.ShortURL)
	})

	t.Run("localhost is plain http", func(t *testing.T) {
		s := setupServer()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/links",
			bytes.NewBufferString(`{"url":"https://example.com","custom_alias":"abc"}`))
		req.Host = "localhost:8080"
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "http://localhost:8080/abc", decode[handler.CreateLinkResponse](t, w).ShortURL)
	})
}

func TestCreateLink_Expiry(t *testing.T) {
	s := setupServer()

	t.Run("expires_in minutes", func(t *testing.T) {
		before := time.Now()
		w := s.do(http.MethodPost, "/api/v1/links", map[string]any{"url": "https://example.com", "expires_in": 60}, nil)
		require.Equal(t, http.StatusCreated, w.Code)

		resp := decode[handler.CreateLinkResponse](t, w)
		require.NotNil(t, resp.ExpiresAt)
		assert.WithinDuration(t, before.Add(time.Hour), *resp.ExpiresAt, 5*time.Second)
	})

	t.Run("expires_in capped at 30 days", func(t *testing.T) {
		before := time.Now()
		w := s.do(http.MethodPost, "/api/v1/links", map[string]any{"url": "https://example.com", "expires_in": 1_000_000}, nil)
		require.Equal(t, http.StatusCreated, w.Code)

		resp := decode[handler.CreateLinkResponse](t, w)
		require.NotNil(t, resp.ExpiresAt)
		assert.WithinDuration(t, before.Add(30*24*time.Hour), *resp.ExpiresAt, 5*time.Second)
	})

	t.Run("expires_at wins over expires_in", func(t *testing.T) {
		at := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
		w := s.do(http.MethodPost, "/api/v1/links", map[string]any{
			"url":        "https://example.com",
			"expires_at": at,
			"expires_in": 5,
		}, nil)
		require.Equal(t, http.StatusCreated, w.Code)

		resp := decode[handler.CreateLinkResponse](t, w)
		require.NotNil(t, resp.ExpiresAt)
		assert.True(t, at.Equal(*resp.ExpiresAt))
	})
}

func TestCreateLink_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"missing url", map[string]any{}, http.StatusBadRequest, "invalid_request"},
		{"relative url", map[string]any{"url": "/just/a/path"}, http.StatusBadRequest, "invalid_url"},
		{"ftp scheme", map[string]any{"url": "ftp://example.com"}, http.StatusBadRequest, "invalid_url"},
		{"bad alias", map[string]any{"url": "https://example.com", "custom_alias": "a b"}, http.StatusBadRequest, "invalid_alias"},
		{"zero expires_in", map[string]any{"url": "https://example.com", "expires_in": 0}, http.StatusBadRequest, "invalid_expiry"},
		{"past expires_at", map[string]any{"url": "https://example.com", "expires_at": time.Now().Add(-time.Hour)}, http.StatusBadRequest, "invalid_expiry"},
		{"spam domain", map[string]any{"url": "https://www.malware.com/x"}, http.StatusBadRequest, "spam_domain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupServer()
			w := s.do(http.MethodPost, "/api/v1/links", tt.body, nil)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode[handler.ErrorResponse](t, w).Error)
		})
	}
}

func TestCreateLink_AliasTaken(t *testing.T) {
	s := setupServer()
	body := map[string]any{"url": "https://example.com", "custom_alias": "taken"}

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/v1/links", body, nil).Code)

	w := s.do(http.MethodPost, "/api/v1/links", body, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "alias_taken", decode[handler.ErrorResponse](t, w).Error)
}

func TestCreateLink_StoreFailure(t *testing.T) {
	s := setupServer()
	s.linkRepo.Fail("create", 1)

	w := s.do(http.MethodPost, "/api/v1/links", map[string]any{"url": "https://example.com"}, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal_error", decode[handler.ErrorResponse](t, w).Error)
}

func TestRedirect(t *testing.T) {
	s := setupServer()
	s.linkRepo.Put(&models.Link{ShortCode: "go", OriginalURL: "https://go.dev", IsActive: true})

	w := s.do(http.MethodGet, "/go", nil, map[string]string{"User-Agent": "Mozilla/5.0 (iPhone)"})
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "https://go.dev", w.Header().Get("Location"))

	assert.Equal(t, []string{"go"}, s.clicks.recorded())
	assert.Equal(t, "Mozilla/5.0 (iPhone)", s.clicks.uas[0])
}

func TestRedirect_NotFound(t *testing.T) {
	s := setupServer()
	past := time.Now().Add(-time.Hour)
	s.linkRepo.Put(&models.Link{ShortCode: "old", OriginalURL: "https://example.com", IsActive: true, ExpiresAt: &past})
	s.linkRepo.Put(&models.Link{ShortCode: "off", OriginalURL: "https://example.com", IsActive: false})

	for _, code := range []string{"missing", "old", "off"} {
		w := s.do(http.MethodGet, "/"+code, nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, w.Body.String(), "<h1>404</h1>")
	}
	assert.Empty(t, s.clicks.recorded())
}

func TestRedirect_StoreFailure(t *testing.T) {
	s := setupServer()
	s.linkRepo.Put(&models.Link{ShortCode: "go", OriginalURL: "https://go.dev", IsActive: true})
	s.linkRepo.Fail("get", 1)

	w := s.do(http.MethodGet, "/go", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "<h1>500</h1>")
	assert.Empty(t, s.clicks.recorded())

	// Ошибка не закэширована
	w = s.do(http.MethodGet, "/go", nil, nil)
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
}

func TestListLinks(t *testing.T) {
	s := setupServer()
	s.linkRepo.Put(&models.Link{ShortCode: "a1", OriginalURL: "https://a.example", IsActive: true})
	s.linkRepo.Put(&models.Link{ShortCode: "b2", OriginalURL: "https://b.example", IsActive: true})
	s.linkRepo.Put(&models.Link{ShortCode: "c3", OriginalURL: "https://c.example", IsActive: false})

	w := s.do(http.MethodGet, "/api/v1/links", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[handler.ListLinksResponse](t, w)
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Links, 2)
}

func TestDeleteLink(t *testing.T) {
	s := setupServer()
	w := s.do(http.MethodPost, "/api/v1/links", map[string]any{"url": "https://example.com", "custom_alias": "gone"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	// Ссылка попала в кэш при создании
	require.Equal(t, http.StatusTemporaryRedirect, s.do(http.MethodGet, "/gone", nil, nil).Code)

	assert.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/api/v1/links/gone", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/gone", nil, nil).Code)

	w = s.do(http.MethodDelete, "/api/v1/links/gone", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[handler.ErrorResponse](t, w).Error)
}

func TestLinkDetailsAndStats(t *testing.T) {
	s := setupServer()
	s.linkRepo.Put(&models.Link{ShortCode: "go", OriginalURL: "https://go.dev", IsActive: true})

	w := s.do(http.MethodGet, "/api/v1/links/go", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	details := decode[models.LinkDetails](t, w)
	assert.Equal(t, "https://go.dev", details.OriginalURL)
	assert.Empty(t, details.RecentClicks)

	w = s.do(http.MethodGet, "/api/v1/links/go/stats", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[models.ClickStats](t, w)
	assert.Equal(t, "go", stats.ShortCode)
	assert.Zero(t, stats.TotalClicks)

	for _, path := range []string{"/api/v1/links/nope", "/api/v1/links/nope/stats"} {
		w = s.do(http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestDailyStats_Days(t *testing.T) {
	stub := &analyticsStub{}
	s := setupServer(func(d *handler.Deps) { d.Analytics = stub })

	tests := []struct {
		query string
		want  int
	}{
		{"", service.DefaultStatsDays},
		{"?days=30", 30},
		{"?days=0", service.DefaultStatsDays},
		{"?days=91", service.DefaultStatsDays},
		{"?days=abc", service.DefaultStatsDays},
		{"?days=90", 90},
	}

	for _, tt := range tests {
		w := s.do(http.MethodGet, "/api/v1/links/go/stats/daily"+tt.query, nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tt.want, stub.days, tt.query)
	}
}

func TestAnalyticsOverview(t *testing.T) {
	s := setupServer()
	s.linkRepo.Put(&models.Link{ShortCode: "go", OriginalURL: "https://go.dev", IsActive: true})

	w := s.do(http.MethodGet, "/api/v1/analytics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	overview := decode[models.AnalyticsOverview](t, w)
	assert.Equal(t, int64(1), overview.TotalLinks)
}

func TestAPIKeyProtectsManagementRoutes(t *testing.T) {
	s := setupServer(func(d *handler.Deps) {
		d.APIKey = middleware.RequireAPIKey(map[string]string{"secret": "ci"})
	})
	s.linkRepo.Put(&models.Link{ShortCode: "go", OriginalURL: "https://go.dev", IsActive: true})

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/links", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/analytics", nil, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/links", nil, map[string]string{"X-API-Key": "secret"}).Code)

	// Health и редирект открыты
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/health", nil, nil).Code)
	assert.Equal(t, http.StatusTemporaryRedirect, s.do(http.MethodGet, "/go", nil, nil).Code)
}

func TestRateLimitedRouter(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: 1,
		BurstSize:         2,
		CleanupInterval:   time.Minute,
	}, nil)
	s := setupServer(func(d *handler.Deps) { d.RateLimiter = rl })

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/health", nil, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/health", nil, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodGet, "/api/v1/health", nil, nil).Code)
}
