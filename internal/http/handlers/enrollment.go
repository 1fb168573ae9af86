package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/enrollment-backend/internal/http/response"
	"github.com/yungbote/enrollment-backend/internal/platform/ctxutil"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
	"github.com/yungbote/enrollment-backend/internal/services"
)

type EnrollmentHandler struct {
	log         *logger.Logger
	enrollments services.EnrollmentService
}

func NewEnrollmentHandler(baseLog *logger.Logger, enrollments services.EnrollmentService) *EnrollmentHandler {
	RegisterValidators()
	return &EnrollmentHandler{log: baseLog.With("handler", "EnrollmentHandler"), enrollments: enrollments}
}

// POST /api/enrollments
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req services.CreateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := h.enrollments.CreateEnrollment(c.Request.Context(), req)
	if err != nil {
		h.log.Warn("create enrollment failed", append(ctxutil.LogFields(c.Request.Context()), "error", err)...)
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, out)
}

// GET /api/enrollments/:id
func (h *EnrollmentHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_enrollment_id", err)
		return
	}
	view, err := h.enrollments.GetEnrollment(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, view)
}
