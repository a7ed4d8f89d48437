package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/SergeiKhy/linktrack/internal/config"
	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/SergeiKhy/linktrack/internal/repository"
)

// GeoLocator определяет страну и город по IP
type GeoLocator interface {
	Lookup(ctx context.Context, ip, ipHash string) (*models.GeoLocation, error)
}

type ipinfoLocator struct {
	baseURL  string
	token    string
	client   *http.Client
	cache    repository.GeoCacheRepository
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewGeoLocator возвращает nil, если токен не задан: геолокация выключена.
// cache может быть nil.
func NewGeoLocator(cfg config.AnalyticsConfig, cache repository.GeoCacheRepository, logger *zap.Logger) GeoLocator {
	if cfg.GeoAPIToken == "" {
		return nil
	}
	timeout := cfg.GeoTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ipinfoLocator{
		baseURL:  cfg.GeoAPIURL,
		token:    cfg.GeoAPIToken,
		client:   &http.Client{Timeout: timeout},
		cache:    cache,
		cacheTTL: cfg.GeoCacheTTL,
		logger:   logger,
	}
}

type ipinfoResponse struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

func (l *ipinfoLocator) Lookup(ctx context.Context, ip, ipHash string) (*models.GeoLocation, error) {
	if l.cache != nil {
		geo, err := l.cache.Get(ctx, ipHash)
		if err == nil {
			return geo, nil
		}
		if !errors.Is(err, repository.ErrCacheMiss) {
			l.logger.Debug("Гео-кэш недоступен", zap.Error(err))
		}
	}

	endpoint := fmt.Sprintf("%s/%s?token=%s", l.baseURL, url.PathEscape(ip), url.QueryEscape(l.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geo lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geo lookup returned status %d", resp.StatusCode)
	}

	var body ipinfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode geo response: %w", err)
	}

	geo := &models.GeoLocation{Country: body.Country, City: body.City}

	if l.cache != nil && l.cacheTTL > 0 {
		if err := l.cache.Set(ctx, ipHash, geo, l.cacheTTL); err != nil {
			l.logger.Debug("Не удалось сохранить геолокацию в кэш", zap.Error(err))
		}
	}

	return geo, nil
}
