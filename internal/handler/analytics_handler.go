package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SergeiKhy/linktrack/internal/repository"
	"github.com/SergeiKhy/linktrack/internal/service"
)

type AnalyticsHandler struct {
	service service.AnalyticsService
	logger  *zap.Logger
}

func NewAnalyticsHandler(service service.AnalyticsService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{service: service, logger: logger}
}

// writeLookupError 404 для неизвестной ссылки, иначе 500
func (h *AnalyticsHandler) writeLookupError(c *gin.Context, code, msg string, err error) {
	if errors.Is(err, repository.ErrLinkNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Link not found",
		})
		return
	}
	h.logger.Error(msg, zap.String("short_code", code), zap.Error(err))
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: msg,
	})
}

// GetLink GET /api/v1/links/:code
func (h *AnalyticsHandler) GetLink(c *gin.Context) {
	code := c.Param("code")

	details, err := h.service.GetLinkDetails(c.Request.Context(), code)
	if err != nil {
		h.writeLookupError(c, code, "Failed to get link", err)
		return
	}

	c.JSON(http.StatusOK, details)
}

// GetStats GET /api/v1/links/:code/stats
func (h *AnalyticsHandler) GetStats(c *gin.Context) {
	code := c.Param("code")

	stats, err := h.service.GetStats(c.Request.Context(), code)
	if err != nil {
		h.writeLookupError(c, code, "Failed to get stats", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetDailyStats GET /api/v1/links/:code/stats/daily?days=N
func (h *AnalyticsHandler) GetDailyStats(c *gin.Context) {
	code := c.Param("code")
	days := service.DefaultStatsDays
	if d := c.Query("days"); d != "" {
		if n, err := strconv.Atoi(d); err == nil && n >= 1 && n <= service.MaxStatsDays {
			days = n
		}
	}

	stats, err := h.service.GetDailyStats(c.Request.Context(), code, days)
	if err != nil {
		h.writeLookupError(c, code, "Failed to get daily stats", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Overview GET /api/v1/analytics
func (h *AnalyticsHandler) Overview(c *gin.Context) {
	overview, err := h.service.Overview(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to build analytics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to build analytics",
		})
		return
	}

	c.JSON(http.StatusOK, overview)
}
