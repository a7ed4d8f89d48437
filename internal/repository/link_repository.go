package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/jackc/pgx/v5"
)

type LinkRepository interface {
	Create(ctx context.Context, link *models.Link) error
	GetByShortCode(ctx context.Context, code string) (*models.Link, error)
	ExistsByCodeOrAlias(ctx context.Context, code string) (bool, error)
	GetLinkIDByShortCode(ctx context.Context, code string) (int64, error)
	IncrementClickCount(ctx context.Context, code string) error
	ListActive(ctx context.Context, limit int) ([]models.Link, error)
	CountActive(ctx context.Context) (int64, error)
	Popular(ctx context.Context, limit int) ([]models.PopularLink, error)
	Delete(ctx context.Context, code string) error
}

type linkRepository struct {
	db *PostgresDB
}

func NewLinkRepository(db *PostgresDB) LinkRepository {
	return &linkRepository{db: db}
}

const linkColumns = `id, short_code, original_url, custom_alias, title, is_active,
	click_count, last_clicked_at, expires_at, created_at, updated_at`

func scanLink(row pgx.Row, link *models.Link) error {
	return row.Scan(
		&link.ID,
		&link.ShortCode,
		&link.OriginalURL,
		&link.CustomAlias,
		&link.Title,
		&link.IsActive,
		&link.ClickCount,
		&link.LastClickedAt,
		&link.ExpiresAt,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
}

func (r *linkRepository) Create(ctx context.Context, link *models.Link) error {
	query := `
		INSERT INTO links (short_code, original_url, custom_alias, title, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + linkColumns

	err := scanLink(r.db.Pool.QueryRow(
		ctx,
		query,
		link.ShortCode,
		link.OriginalURL,
		link.CustomAlias,
		link.Title,
		link.ExpiresAt,
	), link)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	return nil
}

// GetByShortCode возвращает запись как есть, активность и срок жизни проверяет сервис
func (r *linkRepository) GetByShortCode(ctx context.Context, code string) (*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE short_code = $1`

	link := &models.Link{}
	if err := scanLink(r.db.Pool.QueryRow(ctx, query, code), link); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	return link, nil
}

// ExistsByCodeOrAlias одним запросом проверяет занятость кода в обеих колонках
func (r *linkRepository) ExistsByCodeOrAlias(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM links WHERE short_code = $1 OR custom_alias = $1)`

	var exists bool
	if err := r.db.Pool.QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check code: %w", err)
	}

	return exists, nil
}

func (r *linkRepository) GetLinkIDByShortCode(ctx context.Context, code string) (int64, error) {
	query := `SELECT id FROM links WHERE short_code = $1`

	var linkID int64
	err := r.db.Pool.QueryRow(ctx, query, code).Scan(&linkID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrLinkNotFound
		}
		return 0, fmt.Errorf("failed to get link ID: %w", err)
	}

	return linkID, nil
}

func (r *linkRepository) IncrementClickCount(ctx context.Context, code string) error {
	query := `
		UPDATE links
		SET click_count = click_count + 1, last_clicked_at = NOW(), updated_at = NOW()
		WHERE short_code = $1
	`

	result, err := r.db.Pool.Exec(ctx, query, code)
	if err != nil {
		return fmt.Errorf("failed to increment click count: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

func (r *linkRepository) ListActive(ctx context.Context, limit int) ([]models.Link, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM links
		WHERE is_active = TRUE
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	links := make([]models.Link, 0, limit)
	for rows.Next() {
		var link models.Link
		if err := scanLink(rows, &link); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}

	return links, nil
}

func (r *linkRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM links WHERE is_active = TRUE`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return count, nil
}

func (r *linkRepository) Popular(ctx context.Context, limit int) ([]models.PopularLink, error) {
	query := `
		SELECT short_code, original_url, COALESCE(title, ''), click_count
		FROM links
		WHERE is_active = TRUE
		ORDER BY click_count DESC, created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get popular links: %w", err)
	}
	defer rows.Close()

	var links []models.PopularLink
	for rows.Next() {
		var l models.PopularLink
		if err := rows.Scan(&l.ShortCode, &l.OriginalURL, &l.Title, &l.ClickCount); err != nil {
			return nil, fmt.Errorf("failed to scan popular link: %w", err)
		}
		links = append(links, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating popular links: %w", err)
	}

	return links, nil
}

func (r *linkRepository) Delete(ctx context.Context, code string) error {
	query := `DELETE FROM links WHERE short_code = $1`

	result, err := r.db.Pool.Exec(ctx, query, code)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}
