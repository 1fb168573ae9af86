package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/enrollment-backend/internal/http/middleware"
	"github.com/yungbote/enrollment-backend/internal/http/response"
	"github.com/yungbote/enrollment-backend/internal/platform/ctxutil"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
	"github.com/yungbote/enrollment-backend/internal/services"
)

type WebhookHandler struct {
	log   *logger.Logger
	queue services.WebhookQueue
}

func NewWebhookHandler(baseLog *logger.Logger, queue services.WebhookQueue) *WebhookHandler {
	return &WebhookHandler{log: baseLog.With("handler", "WebhookHandler"), queue: queue}
}

type webhookAck struct {
	Queued    bool   `json:"queued"`
	Collapsed bool   `json:"collapsed"`
	Dropped   bool   `json:"dropped,omitempty"`
	JobID     string `json:"job_id,omitempty"`
}

// POST /api/webhooks/payments
//
// Deliveries are only acknowledged once durably queued; any non-2xx makes
// the provider redeliver.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := middleware.RawBody(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	res, err := h.queue.EnqueueWebhook(c.Request.Context(), body)
	if err != nil {
		h.log.Warn("webhook not queued", append(ctxutil.LogFields(c.Request.Context()), "error", err)...)
		response.RespondAPIError(c, err)
		return
	}
	ack := webhookAck{Queued: !res.Dropped, Collapsed: res.Collapsed, Dropped: res.Dropped}
	if res.Job != nil {
		ack.JobID = res.Job.ID.String()
	}
	response.RespondOK(c, ack)
}
