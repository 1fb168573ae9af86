package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/enrollment-backend/internal/http/response"
	"github.com/yungbote/enrollment-backend/internal/observability"
)

// QueueHealthEvaluator is satisfied by observability.QueueHealthCollector.
type QueueHealthEvaluator interface {
	Evaluate(ctx context.Context) (observability.HealthReport, error)
}

type HealthHandler struct {
	queue QueueHealthEvaluator
}

func NewHealthHandler(queue QueueHealthEvaluator) *HealthHandler {
	return &HealthHandler{queue: queue}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /health/queue answers 503 only when the queue is critical, so a
// degraded queue does not take the instance out of rotation.
func (h *HealthHandler) QueueHealth(c *gin.Context) {
	if h.queue == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "queue_health_unavailable", nil)
		return
	}
	report, err := h.queue.Evaluate(c.Request.Context())
	if err != nil {
		response.RespondError(c, http.StatusServiceUnavailable, "queue_health_unavailable", err)
		return
	}
	status := http.StatusOK
	if report.Status == observability.HealthCritical {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
