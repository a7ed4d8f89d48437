package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/SergeiKhy/linktrack/internal/repository"
	"github.com/SergeiKhy/linktrack/internal/service"
)

// Максимальный expires_in, больше молча обрезается
const maxExpiresIn = 30 * 24 * time.Hour

type LinkHandler struct {
	service service.LinkService
	clicks  service.ClickRecorder
	baseURL string
	logger  *zap.Logger
}

func NewLinkHandler(service service.LinkService, clicks service.ClickRecorder, baseURL string, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{
		service: service,
		clicks:  clicks,
		baseURL: baseURL,
		logger:  logger,
	}
}

type CreateLinkRequest struct {
	URL         string     `json:"url" binding:"required"`
	CustomAlias string     `json:"custom_alias,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ExpiresIn   *int       `json:"expires_in,omitempty"` // минуты
}

type CreateLinkResponse struct {
	ShortCode   string     `json:"short_code"`
	ShortURL    string     `json:"short_url"`
	OriginalURL string     `json:"original_url"`
	CustomAlias *string    `json:"custom_alias,omitempty"`
	Title       *string    `json:"title,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type ListLinksResponse struct {
	Links []models.Link `json:"links"`
	Count int           `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// expiry приводит expires_at / expires_in к моменту истечения. expires_at важнее.
func (r *CreateLinkRequest) expiry(now time.Time) (*time.Time, error) {
	if r.ExpiresAt != nil {
		return r.ExpiresAt, nil
	}
	if r.ExpiresIn == nil {
		return nil, nil
	}
	if *r.ExpiresIn <= 0 {
		return nil, service.ErrInvalidExpiry
	}
	ttl := maxExpiresIn
	if *r.ExpiresIn < int(maxExpiresIn/time.Minute) {
		ttl = time.Duration(*r.ExpiresIn) * time.Minute
	}
	t := now.Add(ttl)
	return &t, nil
}

// CreateLink POST /api/v1/links
func (h *LinkHandler) CreateLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	expiresAt, err := req.expiry(time.Now())
	if err != nil {
		writeCreateError(c, err)
		return
	}

	input := &models.CreateLinkInput{
		OriginalURL: strings.TrimSpace(req.URL),
		ExpiresAt:   expiresAt,
	}
	if req.CustomAlias != "" {
		input.CustomAlias = &req.CustomAlias
	}

	link, err := h.service.CreateLink(c.Request.Context(), input)
	if err != nil {
		if service.IsValidation(err) || service.IsCollision(err) {
			h.logger.Info("Link rejected", zap.Error(err))
		} else {
			h.logger.Error("Failed to create link", zap.Error(err))
		}
		writeCreateError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateLinkResponse{
		ShortCode:   link.ShortCode,
		ShortURL:    shortURL(c, h.baseURL, link.ShortCode),
		OriginalURL: link.OriginalURL,
		CustomAlias: link.CustomAlias,
		Title:       link.Title,
		ExpiresAt:   link.ExpiresAt,
		CreatedAt:   link.CreatedAt,
	})
}

func writeCreateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_url",
			Message: "URL must be an absolute http or https address",
		})
	case errors.Is(err, service.ErrInvalidAlias):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_alias",
			Message: "Custom alias must be 3-50 characters: letters, digits, '-' or '_'",
		})
	case errors.Is(err, service.ErrInvalidExpiry):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_expiry",
			Message: "Expiry must be in the future",
		})
	case errors.Is(err, service.ErrSpamDomain):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "spam_domain",
			Message: "Domain is blacklisted",
		})
	case errors.Is(err, service.ErrAliasTaken):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "alias_taken",
			Message: "Custom alias is already taken",
		})
	case errors.Is(err, service.ErrCodeCollision):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "code_collision",
			Message: "Could not allocate a short code, please retry",
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to create link",
		})
	}
}

// Redirect GET /:code. Запись клика не задерживает ответ.
func (h *LinkHandler) Redirect(c *gin.Context) {
	code := c.Param("code")

	destination, found, err := h.service.Resolve(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("Failed to resolve link", zap.String("short_code", code), zap.Error(err))
		renderFallback(c, http.StatusInternalServerError)
		return
	}
	if !found {
		renderFallback(c, http.StatusNotFound)
		return
	}

	h.clicks.Record(code, c.Request.Header)

	c.Redirect(http.StatusTemporaryRedirect, destination)
}

// ListLinks GET /api/v1/links
func (h *LinkHandler) ListLinks(c *gin.Context) {
	links, err := h.service.ListLinks(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list links", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to list links",
		})
		return
	}

	c.JSON(http.StatusOK, ListLinksResponse{Links: links, Count: len(links)})
}

// DeleteLink DELETE /api/v1/links/:code
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	code := c.Param("code")

	err := h.service.DeleteLink(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Link not found",
			})
			return
		}
		h.logger.Error("Failed to delete link", zap.String("short_code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to delete link",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Link deleted successfully"})
}

// shortURL абсолютная короткая ссылка: APP_BASE_URL или схема и хост запроса
func shortURL(c *gin.Context, baseURL, code string) string {
	if baseURL != "" {
		return baseURL + "/" + code
	}

	host := c.Request.Host
	scheme := c.GetHeader("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if strings.Contains(host, "localhost") || strings.HasPrefix(host, "127.0.0.1") {
			scheme = "http"
		}
	}
	return scheme + "://" + host + "/" + code
}
