package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SergeiKhy/linktrack/internal/cache"
	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/SergeiKhy/linktrack/internal/repository"
)

// Константы сервиса
const (
	codeLength        = 7
	codeAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"
	maxCodeAttempts   = 3
	listLinksLimit    = 50
	defaultResolveTTL = 5 * time.Minute
)

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)

// Чёрный список доменов (можно вынести в конфиг или БД)
var blacklistedDomains = []string{
	"malware.com",
	"phishing.com",
	"spam.com",
}

// LinkService создание ссылок и резолв кода в адрес назначения
type LinkService interface {
	CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error)
	// Resolve возвращает found=false для неизвестной, неактивной или истёкшей ссылки
	Resolve(ctx context.Context, code string) (destination string, found bool, err error)
	ListLinks(ctx context.Context) ([]models.Link, error)
	DeleteLink(ctx context.Context, code string) error
	Invalidate(code string)
}

type LinkOption func(*linkService)

// WithCodeGenerator подменяет генератор случайных кодов
func WithCodeGenerator(gen func() (string, error)) LinkOption {
	return func(s *linkService) { s.generateCode = gen }
}

// WithTitleFetcher включает получение <title> при создании ссылки
func WithTitleFetcher(f TitleFetcher) LinkOption {
	return func(s *linkService) { s.titles = f }
}

// WithNow подменяет источник текущего времени
func WithNow(now func() time.Time) LinkOption {
	return func(s *linkService) { s.now = now }
}

type linkService struct {
	linkRepo     repository.LinkRepository
	urls         *cache.Cache[string]
	ttl          time.Duration
	titles       TitleFetcher
	generateCode func() (string, error)
	now          func() time.Time
	logger       *zap.Logger
}

// NewLinkService создаёт сервис поверх кэша code -> destination.
// resolveTTL верхняя граница жизни записи в кэше.
func NewLinkService(
	linkRepo repository.LinkRepository,
	urls *cache.Cache[string],
	resolveTTL time.Duration,
	logger *zap.Logger,
	opts ...LinkOption,
) LinkService {
	if resolveTTL <= 0 {
		resolveTTL = defaultResolveTTL
	}
	s := &linkService{
		linkRepo:     linkRepo,
		urls:         urls,
		ttl:          resolveTTL,
		generateCode: generateShortCode,
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cacheKey(code string) string {
	return "url:" + code
}

func (s *linkService) CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error) {
	if err := validateURL(input.OriginalURL); err != nil {
		return nil, err
	}
	if err := checkSpamDomain(input.OriginalURL); err != nil {
		return nil, err
	}

	var alias *string
	if input.CustomAlias != nil && *input.CustomAlias != "" {
		if !aliasPattern.MatchString(*input.CustomAlias) {
			return nil, ErrInvalidAlias
		}
		alias = input.CustomAlias
	}

	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return nil, ErrInvalidExpiry
	}

	code, err := s.reserveCode(ctx, alias)
	if err != nil {
		return nil, err
	}

	link := &models.Link{
		ShortCode:   code,
		OriginalURL: input.OriginalURL,
		CustomAlias: alias,
		Title:       s.fetchTitle(ctx, input.OriginalURL),
		IsActive:    true,
		ExpiresAt:   input.ExpiresAt,
	}

	if err := s.linkRepo.Create(ctx, link); err != nil {
		// Код заняли между проверкой и вставкой
		if errors.Is(err, repository.ErrCodeExists) {
			if alias != nil {
				return nil, ErrAliasTaken
			}
			return nil, ErrCodeCollision
		}
		return nil, err
	}

	s.cacheLink(link)

	s.logger.Info("Ссылка создана",
		zap.String("short_code", link.ShortCode),
		zap.Bool("custom_alias", alias != nil),
	)

	return link, nil
}

// reserveCode подбирает свободный код. Занятый алиас сразу ошибка,
// случайный код перегенерируется до maxCodeAttempts раз.
func (s *linkService) reserveCode(ctx context.Context, alias *string) (string, error) {
	if alias != nil {
		exists, err := s.linkRepo.ExistsByCodeOrAlias(ctx, *alias)
		if err != nil {
			return "", err
		}
		if exists {
			return "", ErrAliasTaken
		}
		return *alias, nil
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}

		exists, err := s.linkRepo.ExistsByCodeOrAlias(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}

		s.logger.Debug("Коллизия случайного кода",
			zap.String("short_code", code),
			zap.Int("attempt", attempt),
		)
	}

	return "", ErrCodeCollision
}

func (s *linkService) fetchTitle(ctx context.Context, destination string) *string {
	if s.titles == nil {
		return nil
	}
	title, err := s.titles.FetchTitle(ctx, destination)
	if err != nil {
		s.logger.Debug("Не удалось получить заголовок страницы",
			zap.String("url", destination),
			zap.Error(err),
		)
		return nil
	}
	title = sanitizeText(title, maxTitleLength)
	if title == "" {
		return nil
	}
	return &title
}

func (s *linkService) Resolve(ctx context.Context, code string) (string, bool, error) {
	if destination, ok := s.urls.Get(cacheKey(code)); ok {
		return destination, true, nil
	}

	link, err := s.linkRepo.GetByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	// Отрицательный результат не кэшируем
	if !link.Resolvable(s.now()) {
		return "", false, nil
	}

	s.cacheLink(link)
	return link.OriginalURL, true, nil
}

// cacheLink кладёт адрес в кэш не дольше, чем ссылка проживёт
func (s *linkService) cacheLink(link *models.Link) {
	ttl := s.ttl
	if link.ExpiresAt != nil {
		if left := link.ExpiresAt.Sub(s.now()); left < ttl {
			ttl = left
		}
	}
	if ttl <= 0 {
		return
	}
	s.urls.Set(cacheKey(link.ShortCode), link.OriginalURL, ttl)
}

func (s *linkService) Invalidate(code string) {
	s.urls.Delete(cacheKey(code))
}

func (s *linkService) ListLinks(ctx context.Context) ([]models.Link, error) {
	return s.linkRepo.ListActive(ctx, listLinksLimit)
}

func (s *linkService) DeleteLink(ctx context.Context, code string) error {
	if err := s.linkRepo.Delete(ctx, code); err != nil {
		return err
	}
	s.Invalidate(code)
	return nil
}

// generateShortCode случайный код из 64-символьного алфавита,
// младшие 6 бит байта дают индекс без смещения распределения
func generateShortCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[b&63]
	}
	return string(buf), nil
}

// validateURL абсолютный http(s) URL с хостом
func validateURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	if u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

// checkSpamDomain сравнивает хост и его родительские домены с чёрным списком
func checkSpamDomain(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	host := strings.ToLower(u.Hostname())
	for _, domain := range blacklistedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return ErrSpamDomain
		}
	}
	return nil
}
