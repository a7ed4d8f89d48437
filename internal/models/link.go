package models

import (
	"time"
)

// Link короткая ссылка, хранится в Postgres
type Link struct {
	ID            int64      `json:"id"`
	ShortCode     string     `json:"short_code"`
	OriginalURL   string     `json:"original_url"`
	CustomAlias   *string    `json:"custom_alias,omitempty"`
	Title         *string    `json:"title,omitempty"`
	IsActive      bool       `json:"is_active"`
	ClickCount    int64      `json:"click_count"`
	LastClickedAt *time.Time `json:"last_clicked_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Resolvable сообщает, можно ли редиректить по ссылке в момент now
func (l *Link) Resolvable(now time.Time) bool {
	if !l.IsActive {
		return false
	}
	return l.ExpiresAt == nil || !l.ExpiresAt.Before(now)
}

type CreateLinkInput struct {
	OriginalURL string     `json:"original_url"`
	CustomAlias *string    `json:"custom_alias,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// LinkDetails ссылка вместе с последними кликами
type LinkDetails struct {
	Link
	RecentClicks []ClickSummary `json:"recent_clicks"`
}

type PopularLink struct {
	ShortCode   string `json:"short_code"`
	OriginalURL string `json:"original_url"`
	Title       string `json:"title,omitempty"`
	ClickCount  int64  `json:"click_count"`
}
