package models

import (
	"time"
)

// Click строка таблицы clicks. Сырой IP сюда не попадает, только хэш.
type Click struct {
	ID         int64     `json:"id"`
	LinkID     int64     `json:"link_id"`
	IPHash     string    `json:"ip_hash"`
	UserAgent  string    `json:"user_agent"`
	Referer    string    `json:"referer"`
	DeviceType string    `json:"device_type"`
	Browser    string    `json:"browser"`
	OS         string    `json:"os"`
	Country    *string   `json:"country,omitempty"`
	City       *string   `json:"city,omitempty"`
	ClickedAt  time.Time `json:"clicked_at"`
}

// ClickSummary урезанный клик для статистики и агрегатов
type ClickSummary struct {
	Country    *string   `json:"country,omitempty"`
	DeviceType string    `json:"device_type"`
	ClickedAt  time.Time `json:"clicked_at"`
}

// GeoLocation результат геолокации по IP
type GeoLocation struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

type ClickStats struct {
	ShortCode    string `json:"short_code"`
	TotalClicks  int64  `json:"total_clicks"`
	UniqueClicks int64  `json:"unique_clicks"`
}

type DailyClickStats struct {
	Date   string `json:"date"`
	Clicks int64  `json:"clicks"`
}

// AnalyticsOverview агрегированная статистика за окно
type AnalyticsOverview struct {
	TotalLinks      int64            `json:"total_links"`
	TotalClicks     int64            `json:"total_clicks"`
	RecentClicks    int64            `json:"recent_clicks"`
	PopularLinks    []PopularLink    `json:"popular_links"`
	ClicksByDay     map[string]int64 `json:"clicks_by_day"`
	ClicksByCountry map[string]int64 `json:"clicks_by_country"`
	ClicksByDevice  map[string]int64 `json:"clicks_by_device"`
}
