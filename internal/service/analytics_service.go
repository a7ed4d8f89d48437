package service

import (
	"context"
	"time"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/SergeiKhy/linktrack/internal/repository"
)

const (
	recentClicksLimit = 100
	popularLinksLimit = 5
	analyticsWindow   = 7 * 24 * time.Hour

	DefaultStatsDays = 7
	MaxStatsDays     = 90
)

// AnalyticsService статистика по ссылкам и общие агрегаты
type AnalyticsService interface {
	GetLinkDetails(ctx context.Context, code string) (*models.LinkDetails, error)
	GetStats(ctx context.Context, code string) (*models.ClickStats, error)
	GetDailyStats(ctx context.Context, code string, days int) ([]models.DailyClickStats, error)
	Overview(ctx context.Context) (*models.AnalyticsOverview, error)
}

type analyticsService struct {
	linkRepo  repository.LinkRepository
	clickRepo repository.ClickRepository
	now       func() time.Time
}

func NewAnalyticsService(linkRepo repository.LinkRepository, clickRepo repository.ClickRepository) AnalyticsService {
	return &analyticsService{
		linkRepo:  linkRepo,
		clickRepo: clickRepo,
		now:       time.Now,
	}
}

func (s *analyticsService) GetLinkDetails(ctx context.Context, code string) (*models.LinkDetails, error) {
	link, err := s.linkRepo.GetByShortCode(ctx, code)
	if err != nil {
		return nil, err
	}

	clicks, err := s.clickRepo.RecentByLink(ctx, link.ID, recentClicksLimit)
	if err != nil {
		return nil, err
	}

	return &models.LinkDetails{Link: *link, RecentClicks: clicks}, nil
}

func (s *analyticsService) GetStats(ctx context.Context, code string) (*models.ClickStats, error) {
	return s.clickRepo.GetStats(ctx, code)
}

// GetDailyStats days приводится к диапазону [1, MaxStatsDays]
func (s *analyticsService) GetDailyStats(ctx context.Context, code string, days int) ([]models.DailyClickStats, error) {
	if days < 1 {
		days = DefaultStatsDays
	}
	if days > MaxStatsDays {
		days = MaxStatsDays
	}
	return s.clickRepo.GetDailyStats(ctx, code, days)
}

func (s *analyticsService) Overview(ctx context.Context) (*models.AnalyticsOverview, error) {
	totalLinks, err := s.linkRepo.CountActive(ctx)
	if err != nil {
		return nil, err
	}

	totalClicks, err := s.clickRepo.CountAll(ctx)
	if err != nil {
		return nil, err
	}

	popular, err := s.linkRepo.Popular(ctx, popularLinksLimit)
	if err != nil {
		return nil, err
	}
	if popular == nil {
		popular = []models.PopularLink{}
	}

	recent, err := s.clickRepo.Since(ctx, s.now().Add(-analyticsWindow))
	if err != nil {
		return nil, err
	}

	overview := &models.AnalyticsOverview{
		TotalLinks:      totalLinks,
		TotalClicks:     totalClicks,
		RecentClicks:    int64(len(recent)),
		PopularLinks:    popular,
		ClicksByDay:     make(map[string]int64),
		ClicksByCountry: make(map[string]int64),
		ClicksByDevice:  make(map[string]int64),
	}

	for _, c := range recent {
		overview.ClicksByDay[c.ClickedAt.UTC().Format("2006-01-02")]++
		if c.Country != nil && *c.Country != "" {
			overview.ClicksByCountry[*c.Country]++
		}
		if c.DeviceType != "" {
			overview.ClicksByDevice[c.DeviceType]++
		}
	}

	return overview, nil
}
