package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/enrollment-backend/internal/http/middleware"
	"github.com/yungbote/enrollment-backend/internal/http/response"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
	"github.com/yungbote/enrollment-backend/internal/services"
)

const defaultFailedPageSize = 50

type QueueAdminHandler struct {
	log   *logger.Logger
	queue services.WebhookQueue
}

func NewQueueAdminHandler(baseLog *logger.Logger, queue services.WebhookQueue) *QueueAdminHandler {
	return &QueueAdminHandler{log: baseLog.With("handler", "QueueAdminHandler"), queue: queue}
}

// GET /api/admin/webhook-queue/stats
func (h *QueueAdminHandler) Stats(c *gin.Context) {
	snap, err := h.queue.GetStats(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"stats":       snap,
		"backlog":     snap.Backlog(),
		"failed_rate": snap.FailedRate(),
		"paused":      h.queue.IsPaused(c.Request.Context()),
	})
}

// GET /api/admin/webhook-queue/failed?offset=&limit=
func (h *QueueAdminHandler) Failed(c *gin.Context) {
	offset, err := queryInt(c, "offset", 0, 0)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_offset", err)
		return
	}
	limit, err := queryInt(c, "limit", defaultFailedPageSize, 1)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
		return
	}
	jobs, err := h.queue.GetFailedJobs(c.Request.Context(), offset, limit)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"jobs": jobs, "offset": offset, "limit": limit})
}

// POST /api/admin/webhook-queue/jobs/:id/retry
func (h *QueueAdminHandler) Retry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.queue.Retry(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	h.log.Info("job retried by operator", "job_id", id, "admin", middleware.AdminSubject(c))
	response.RespondOK(c, gin.H{"job": job})
}

// POST /api/admin/webhook-queue/pause
func (h *QueueAdminHandler) Pause(c *gin.Context) {
	if err := h.queue.Pause(c.Request.Context()); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	h.log.Info("queue paused by operator", "admin", middleware.AdminSubject(c))
	response.RespondOK(c, gin.H{"paused": true})
}

// POST /api/admin/webhook-queue/resume
func (h *QueueAdminHandler) Resume(c *gin.Context) {
	if err := h.queue.Resume(c.Request.Context()); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	h.log.Info("queue resumed by operator", "admin", middleware.AdminSubject(c))
	response.RespondOK(c, gin.H{"paused": false})
}

func queryInt(c *gin.Context, key string, def, min int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	if n < min {
		return 0, fmt.Errorf("%s must be >= %d", key, min)
	}
	return n, nil
}
