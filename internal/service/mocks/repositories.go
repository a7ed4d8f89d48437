package mocks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/SergeiKhy/linktrack/internal/repository"
)

// ErrInjected ошибка, которую моки возвращают по запросу теста
var ErrInjected = errors.New("injected failure")

// failures счётчик оставшихся искусственных ошибок по операциям
type failures struct {
	left map[string]int
}

func (f *failures) set(op string, n int) {
	if f.left == nil {
		f.left = make(map[string]int)
	}
	f.left[op] = n
}

func (f *failures) take(op string) error {
	if f.left[op] > 0 {
		f.left[op]--
		return ErrInjected
	}
	return nil
}

// MockLinkRepository implements repository.LinkRepository for testing
type MockLinkRepository struct {
	mu     sync.RWMutex
	links  map[string]*models.Link
	nextID int64
	fail   failures

	existsCalls    int
	incrementCalls int
}

func NewMockLinkRepository() *MockLinkRepository {
	return &MockLinkRepository{
		links:  make(map[string]*models.Link),
		nextID: 1,
	}
}

// Fail заставляет следующие n вызовов op вернуть ErrInjected.
// op: "create", "get", "exists", "linkID", "increment".
func (m *MockLinkRepository) Fail(op string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail.set(op, n)
}

// Put кладёт ссылку как есть, в обход проверок сервиса
func (m *MockLinkRepository) Put(link *models.Link) *models.Link {
	m.mu.Lock()
	defer m.mu.Unlock()
	link.ID = m.nextID
	m.nextID++
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	m.links[link.ShortCode] = link
	return link
}

func (m *MockLinkRepository) Create(ctx context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail.take("create"); err != nil {
		return err
	}
	if _, exists := m.links[link.ShortCode]; exists {
		return repository.ErrCodeExists
	}

	link.ID = m.nextID
	m.nextID++
	link.CreatedAt = time.Now()
	link.UpdatedAt = link.CreatedAt
	stored := *link
	m.links[link.ShortCode] = &stored
	return nil
}

func (m *MockLinkRepository) GetByShortCode(ctx context.Context, code string) (*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail.take("get"); err != nil {
		return nil, err
	}
	link, exists := m.links[code]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	cp := *link
	return &cp, nil
}

func (m *MockLinkRepository) ExistsByCodeOrAlias(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.existsCalls++
	if err := m.fail.take("exists"); err != nil {
		return false, err
	}
	for _, link := range m.links {
		if link.ShortCode == code || (link.CustomAlias != nil && *link.CustomAlias == code) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockLinkRepository) GetLinkIDByShortCode(ctx context.Context, code string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail.take("linkID"); err != nil {
		return 0, err
	}
	link, exists := m.links[code]
	if !exists {
		return 0, repository.ErrLinkNotFound
	}
	return link.ID, nil
}

func (m *MockLinkRepository) IncrementClickCount(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.incrementCalls++
	if err := m.fail.take("increment"); err != nil {
		return err
	}
	link, exists := m.links[code]
	if !exists {
		return repository.ErrLinkNotFound
	}
	link.ClickCount++
	now := time.Now()
	link.LastClickedAt = &now
	return nil
}

func (m *MockLinkRepository) ListActive(ctx context.Context, limit int) ([]models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	links := []models.Link{}
	for _, link := range m.links {
		if link.IsActive {
			links = append(links, *link)
		}
	}
	sort.Slice(links, func(i, j int) bool { return links[i].CreatedAt.After(links[j].CreatedAt) })
	if len(links) > limit {
		links = links[:limit]
	}
	return links, nil
}

func (m *MockLinkRepository) CountActive(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, link := range m.links {
		if link.IsActive {
			n++
		}
	}
	return n, nil
}

func (m *MockLinkRepository) Popular(ctx context.Context, limit int) ([]models.PopularLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var links []models.PopularLink
	for _, link := range m.links {
		if !link.IsActive {
			continue
		}
		p := models.PopularLink{ShortCode: link.ShortCode, OriginalURL: link.OriginalURL, ClickCount: link.ClickCount}
		if link.Title != nil {
			p.Title = *link.Title
		}
		links = append(links, p)
	}
	sort.Slice(links, func(i, j int) bool { return links[i].ClickCount > links[j].ClickCount })
	if len(links) > limit {
		links = links[:limit]
	}
	return links, nil
}

func (m *MockLinkRepository) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.links[code]; !exists {
		return repository.ErrLinkNotFound
	}
	delete(m.links, code)
	return nil
}

func (m *MockLinkRepository) ExistsCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.existsCalls
}

func (m *MockLinkRepository) IncrementCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.incrementCalls
}

// ClickCount значение счётчика кликов ссылки
func (m *MockLinkRepository) ClickCount(code string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if link, ok := m.links[code]; ok {
		return link.ClickCount
	}
	return 0
}

func (m *MockLinkRepository) codeByID(id int64) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for code, link := range m.links {
		if link.ID == id {
			return code
		}
	}
	return ""
}

func (m *MockLinkRepository) idByCode(code string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	link, ok := m.links[code]
	if !ok {
		return 0, false
	}
	return link.ID, true
}

// MockClickRepository implements repository.ClickRepository for testing
type MockClickRepository struct {
	mu     sync.RWMutex
	links  *MockLinkRepository
	clicks []models.Click
	nextID int64
	fail   failures

	recordCalls int
}

func NewMockClickRepository(links *MockLinkRepository) *MockClickRepository {
	return &MockClickRepository{links: links, nextID: 1}
}

// Fail заставляет следующие n вызовов op вернуть ErrInjected. op: "record".
func (m *MockClickRepository) Fail(op string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail.set(op, n)
}

func (m *MockClickRepository) RecordClick(ctx context.Context, click *models.Click) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recordCalls++
	if err := m.fail.take("record"); err != nil {
		return err
	}
	click.ID = m.nextID
	m.nextID++
	m.clicks = append(m.clicks, *click)
	return nil
}

func (m *MockClickRepository) RecordCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recordCalls
}

// Clicks копия всех записанных кликов
func (m *MockClickRepository) Clicks() []models.Click {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Click(nil), m.clicks...)
}

func (m *MockClickRepository) GetStats(ctx context.Context, shortCode string) (*models.ClickStats, error) {
	linkID, ok := m.links.idByCode(shortCode)
	if !ok {
		return nil, repository.ErrLinkNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.ClickStats{ShortCode: shortCode}
	unique := make(map[string]bool)
	for _, c := range m.clicks {
		if c.LinkID == linkID {
			stats.TotalClicks++
			unique[c.IPHash] = true
		}
	}
	stats.UniqueClicks = int64(len(unique))
	return stats, nil
}

func (m *MockClickRepository) GetDailyStats(ctx context.Context, shortCode string, days int) ([]models.DailyClickStats, error) {
	linkID, ok := m.links.idByCode(shortCode)
	if !ok {
		return []models.DailyClickStats{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	since := time.Now().AddDate(0, 0, -days)
	byDay := make(map[string]int64)
	for _, c := range m.clicks {
		if c.LinkID == linkID && !c.ClickedAt.Before(since) {
			byDay[c.ClickedAt.UTC().Format("2006-01-02")]++
		}
	}

	stats := []models.DailyClickStats{}
	for date, n := range byDay {
		stats = append(stats, models.DailyClickStats{Date: date, Clicks: n})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Date > stats[j].Date })
	return stats, nil
}

func (m *MockClickRepository) RecentByLink(ctx context.Context, linkID int64, limit int) ([]models.ClickSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.ClickSummary{}
	for i := len(m.clicks) - 1; i >= 0 && len(out) < limit; i-- {
		c := m.clicks[i]
		if c.LinkID == linkID {
			out = append(out, models.ClickSummary{Country: c.Country, DeviceType: c.DeviceType, ClickedAt: c.ClickedAt})
		}
	}
	return out, nil
}

func (m *MockClickRepository) CountAll(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.clicks)), nil
}

func (m *MockClickRepository) Since(ctx context.Context, since time.Time) ([]models.ClickSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.ClickSummary{}
	for i := len(m.clicks) - 1; i >= 0; i-- {
		c := m.clicks[i]
		if !c.ClickedAt.Before(since) {
			out = append(out, models.ClickSummary{Country: c.Country, DeviceType: c.DeviceType, ClickedAt: c.ClickedAt})
		}
	}
	return out, nil
}

// ShortCodeOf код ссылки, к которой относится клик
func (m *MockClickRepository) ShortCodeOf(c models.Click) string {
	return m.links.codeByID(c.LinkID)
}

// MockGeoCacheRepository implements repository.GeoCacheRepository for testing
type MockGeoCacheRepository struct {
	mu    sync.RWMutex
	items map[string]models.GeoLocation
}

func NewMockGeoCacheRepository() *MockGeoCacheRepository {
	return &MockGeoCacheRepository{items: make(map[string]models.GeoLocation)}
}

func (m *MockGeoCacheRepository) Get(ctx context.Context, ipHash string) (*models.GeoLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	geo, ok := m.items[ipHash]
	if !ok {
		return nil, repository.ErrCacheMiss
	}
	return &geo, nil
}

func (m *MockGeoCacheRepository) Set(ctx context.Context, ipHash string, geo *models.GeoLocation, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[ipHash] = *geo
	return nil
}

// Keys ключи кэша
func (m *MockGeoCacheRepository) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	return keys
}
