package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/jackc/pgx/v5"
)

type ClickRepository interface {
	RecordClick(ctx context.Context, click *models.Click) error
	GetStats(ctx context.Context, shortCode string) (*models.ClickStats, error)
	GetDailyStats(ctx context.Context, shortCode string, days int) ([]models.DailyClickStats, error)
	RecentByLink(ctx context.Context, linkID int64, limit int) ([]models.ClickSummary, error)
	CountAll(ctx context.Context) (int64, error)
	Since(ctx context.Context, since time.Time) ([]models.ClickSummary, error)
}

type clickRepository struct {
	db *PostgresDB
}

func NewClickRepository(db *PostgresDB) ClickRepository {
	return &clickRepository{db: db}
}

func (r *clickRepository) RecordClick(ctx context.Context, click *models.Click) error {
	query := `
		INSERT INTO clicks (link_id, ip_hash, user_agent, referer, device_type, browser, os, country, city, clicked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		click.LinkID,
		click.IPHash,
		click.UserAgent,
		click.Referer,
		click.DeviceType,
		click.Browser,
		click.OS,
		click.Country,
		click.City,
		click.ClickedAt,
	).Scan(&click.ID)

	if err != nil {
		return fmt.Errorf("failed to record click: %w", err)
	}

	return nil
}

func (r *clickRepository) GetStats(ctx context.Context, shortCode string) (*models.ClickStats, error) {
	query := `
		SELECT
			COUNT(c.id) as total_clicks,
			COUNT(DISTINCT c.ip_hash) as unique_clicks
		FROM links l
		LEFT JOIN clicks c ON c.link_id = l.id
		WHERE l.short_code = $1
		GROUP BY l.id
	`

	stats := &models.ClickStats{
		ShortCode: shortCode,
	}

	err := r.db.Pool.QueryRow(ctx, query, shortCode).Scan(
		&stats.TotalClicks,
		&stats.UniqueClicks,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get click stats: %w", err)
	}

	return stats, nil
}

func (r *clickRepository) GetDailyStats(ctx context.Context, shortCode string, days int) ([]models.DailyClickStats, error) {
	query := `
		SELECT
			TO_CHAR(DATE(c.clicked_at), 'YYYY-MM-DD') as date,
			COUNT(*) as clicks
		FROM clicks c
		JOIN links l ON c.link_id = l.id
		WHERE l.short_code = $1
			AND c.clicked_at >= NOW() - INTERVAL '1 day' * $2
		GROUP BY DATE(c.clicked_at)
		ORDER BY DATE(c.clicked_at) DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, shortCode, days)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}
	defer rows.Close()

	stats := []models.DailyClickStats{}
	for rows.Next() {
		var dailyStat models.DailyClickStats
		if err := rows.Scan(&dailyStat.Date, &dailyStat.Clicks); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		stats = append(stats, dailyStat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily stats: %w", err)
	}

	return stats, nil
}

// RecentByLink последние клики ссылки, новые первыми
func (r *clickRepository) RecentByLink(ctx context.Context, linkID int64, limit int) ([]models.ClickSummary, error) {
	query := `
		SELECT country, device_type, clicked_at
		FROM clicks
		WHERE link_id = $1
		ORDER BY clicked_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, linkID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent clicks: %w", err)
	}
	return collectSummaries(rows)
}

func (r *clickRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM clicks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count clicks: %w", err)
	}
	return count, nil
}

// Since все клики начиная с момента since, новые первыми
func (r *clickRepository) Since(ctx context.Context, since time.Time) ([]models.ClickSummary, error) {
	query := `
		SELECT country, device_type, clicked_at
		FROM clicks
		WHERE clicked_at >= $1
		ORDER BY clicked_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get clicks since %s: %w", since.Format(time.RFC3339), err)
	}
	return collectSummaries(rows)
}

func collectSummaries(rows pgx.Rows) ([]models.ClickSummary, error) {
	defer rows.Close()

	clicks := []models.ClickSummary{}
	for rows.Next() {
		var c models.ClickSummary
		if err := rows.Scan(&c.Country, &c.DeviceType, &c.ClickedAt); err != nil {
			return nil, fmt.Errorf("failed to scan click: %w", err)
		}
		clicks = append(clicks, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clicks: %w", err)
	}

	return clicks, nil
}
