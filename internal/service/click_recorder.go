package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/SergeiKhy/linktrack/internal/queue"
	"github.com/SergeiKhy/linktrack/internal/repository"
)

// KindRecordClick вид задачи записи клика
const KindRecordClick = "recordClick"

// JobQueue то, что рекордеру нужно от очереди
type JobQueue interface {
	Register(kind string, h queue.Handler)
	Enqueue(kind string, payload any) (string, error)
}

// CacheInvalidator сбрасывает запись резолвера после записи клика
type CacheInvalidator interface {
	Invalidate(code string)
}

// ClickPayload данные задачи recordClick. ClientIP живёт только в памяти
// и нужен для геолокации, в базу попадает только IPHash.
type ClickPayload struct {
	ShortCode  string
	ClientIP   string
	IPHash     string
	UserAgent  string
	Referer    string
	DeviceType string
	Browser    string
	OS         string
	ClickedAt  time.Time

	// Строка клика уже вставлена, повтор только досчитывает счётчик
	stored bool
}

// ClickRecorder ставит клик в фоновую очередь, не блокируя редирект
type ClickRecorder interface {
	Record(code string, headers http.Header)
}

type clickRecorder struct {
	queue       JobQueue
	linkRepo    repository.LinkRepository
	clickRepo   repository.ClickRepository
	geo         GeoLocator
	invalidator CacheInvalidator
	salt        string
	now         func() time.Time
	logger      *zap.Logger
}

// NewClickRecorder регистрирует обработчик recordClick в очереди.
// geo может быть nil: геолокация выключена.
func NewClickRecorder(
	q JobQueue,
	linkRepo repository.LinkRepository,
	clickRepo repository.ClickRepository,
	geo GeoLocator,
	invalidator CacheInvalidator,
	salt string,
	logger *zap.Logger,
) ClickRecorder {
	r := &clickRecorder{
		queue:       q,
		linkRepo:    linkRepo,
		clickRepo:   clickRepo,
		geo:         geo,
		invalidator: invalidator,
		salt:        salt,
		now:         time.Now,
		logger:      logger,
	}
	q.Register(KindRecordClick, r.handle)
	return r
}

// Record никогда не возвращает ошибку и не паникует наружу
func (r *clickRecorder) Record(code string, headers http.Header) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Паника при постановке клика в очередь",
				zap.String("short_code", code),
				zap.Any("panic", rec),
			)
		}
	}()

	ip := ClientIP(headers)
	ua := headers.Get("User-Agent")
	info := ParseUserAgent(ua)

	payload := &ClickPayload{
		ShortCode:  code,
		ClientIP:   ip,
		IPHash:     HashIP(ip, r.salt),
		UserAgent:  sanitizeText(ua, 0),
		Referer:    sanitizeText(headers.Get("Referer"), 0),
		DeviceType: info.DeviceType,
		Browser:    info.Browser,
		OS:         info.OS,
		ClickedAt:  r.now(),
	}

	if _, err := r.queue.Enqueue(KindRecordClick, payload); err != nil {
		r.logger.Warn("Клик не поставлен в очередь",
			zap.String("short_code", code),
			zap.Error(err),
		)
	}
}

// handle обработчик recordClick. Ошибка записи уходит в повторы очереди.
func (r *clickRecorder) handle(ctx context.Context, job *queue.Job) error {
	p, ok := job.Payload.(*ClickPayload)
	if !ok {
		r.logger.Error("Неверный payload задачи recordClick", zap.String("job_id", job.ID))
		return nil
	}

	linkID, err := r.linkRepo.GetLinkIDByShortCode(ctx, p.ShortCode)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			r.logger.Warn("Клик по несуществующей ссылке отброшен", zap.String("short_code", p.ShortCode))
			return nil
		}
		return fmt.Errorf("resolve link id: %w", err)
	}

	if !p.stored {
		click := &models.Click{
			LinkID:     linkID,
			IPHash:     p.IPHash,
			UserAgent:  p.UserAgent,
			Referer:    p.Referer,
			DeviceType: p.DeviceType,
			Browser:    p.Browser,
			OS:         p.OS,
			ClickedAt:  p.ClickedAt,
		}
		r.locate(ctx, p, click)

		if err := r.clickRepo.RecordClick(ctx, click); err != nil {
			return err
		}
		p.stored = true
		p.ClientIP = ""
	}

	if err := r.linkRepo.IncrementClickCount(ctx, p.ShortCode); err != nil {
		return err
	}

	if r.invalidator != nil {
		r.invalidator.Invalidate(p.ShortCode)
	}
	return nil
}

// locate заполняет страну и город. Любая ошибка оставляет поля пустыми.
func (r *clickRecorder) locate(ctx context.Context, p *ClickPayload, click *models.Click) {
	if r.geo == nil || isLoopback(p.ClientIP) {
		return
	}

	geo, err := r.geo.Lookup(ctx, p.ClientIP, p.IPHash)
	if err != nil {
		r.logger.Debug("Геолокация недоступна",
			zap.String("short_code", p.ShortCode),
			zap.Error(err),
		)
		return
	}

	if country := sanitizeText(geo.Country, maxCountryLength); country != "" {
		click.Country = &country
	}
	if city := sanitizeText(geo.City, maxCityLength); city != "" {
		click.City = &city
	}
}
