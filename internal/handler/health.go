package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SergeiKhy/linktrack/internal/queue"
)

// QueueStats источник состояния очереди для health-check
type QueueStats interface {
	Stats() queue.Stats
}

type HealthResponse struct {
	Status string       `json:"status"`
	Time   time.Time    `json:"time"`
	Queue  *queue.Stats `json:"queue,omitempty"`
}

// healthCheck GET /api/v1/health
func healthCheck(q QueueStats) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := HealthResponse{Status: "ok", Time: time.Now().UTC()}
		if q != nil {
			stats := q.Stats()
			resp.Queue = &stats
		}
		c.JSON(http.StatusOK, resp)
	}
}
