package handlers

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/enrollment-backend/internal/clients/payments"
	"github.com/yungbote/enrollment-backend/internal/http/response"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
	"github.com/yungbote/enrollment-backend/internal/services"
)

const MockCheckoutTemplate = "mock_checkout.html"

// MockCheckoutPage is registered on the engine with SetHTMLTemplate.
var MockCheckoutPage = template.Must(template.New(MockCheckoutTemplate).Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Mock checkout</title></head>
<body>
  <h1>Mock checkout</h1>
  <p>Enrollment <code>{{.EnrollmentID}}</code> ({{.Kind}})</p>
  <p>Amount: {{.Amount}}</p>
  <p>State: <strong>{{.State}}</strong>, payment {{.PaymentStatus}}</p>
  {{range .Outcomes}}
  <form method="post" action="/mock-checkout/{{$.EnrollmentID}}/pay?status={{.}}">
    <button type="submit">Simulate {{.}}</button>
  </form>
  {{end}}
</body>
</html>
`))

var mockOutcomes = []string{"approved", "pending", "rejected"}

// MockCheckoutHandler stands in for the provider checkout in mock mode: it
// shows the enrollment and turns a click into a payment webhook.
type MockCheckoutHandler struct {
	log         *logger.Logger
	enrollments services.EnrollmentService
	queue       services.WebhookQueue
}

func NewMockCheckoutHandler(baseLog *logger.Logger, enrollments services.EnrollmentService, queue services.WebhookQueue) *MockCheckoutHandler {
	return &MockCheckoutHandler{
		log:         baseLog.With("handler", "MockCheckoutHandler"),
		enrollments: enrollments,
		queue:       queue,
	}
}

// GET /mock-checkout/:id
func (h *MockCheckoutHandler) Page(c *gin.Context) {
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
	data := gin.H{
		"EnrollmentID": id.String(),
		"Outcomes":     mockOutcomes,
	}
	if view.Enrollment != nil {
		data["Kind"] = view.Enrollment.Kind
		data["State"] = view.Enrollment.State
	}
	if view.Payment != nil {
		data["Amount"] = view.Payment.Amount.StringFixed(2)
		data["PaymentStatus"] = view.Payment.Status
	}
	c.HTML(http.StatusOK, MockCheckoutTemplate, data)
}

// POST /mock-checkout/:id/pay?status=approved|pending|rejected
func (h *MockCheckoutHandler) Pay(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_enrollment_id", err)
		return
	}
	status := strings.ToLower(strings.TrimSpace(c.DefaultQuery("status", "approved")))
	if !validMockOutcome(status) {
		response.RespondError(c, http.StatusBadRequest, "invalid_status", fmt.Errorf("status must be one of %s", strings.Join(mockOutcomes, ", ")))
		return
	}
	paymentID := "mock-" + id.String()
	res, err := h.queue.Enqueue(c.Request.Context(), payments.WebhookEvent{
		ID:                payments.FlexString(paymentID + ":" + status),
		Type:              string(payments.EventPayment),
		Action:            "payment.updated",
		Data:              payments.EventData{ID: payments.FlexString(paymentID)},
		DateCreated:       time.Now().UTC().Format(time.RFC3339),
		Status:            status,
		ExternalReference: id.String(),
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	h.log.Info("mock payment submitted", "enrollment_id", id, "status", status, "job_id", res.Job.ID)
	c.JSON(http.StatusAccepted, webhookAck{Queued: true, Collapsed: res.Collapsed, JobID: res.Job.ID.String()})
}

func validMockOutcome(status string) bool {
	for _, s := range mockOutcomes {
		if s == status {
			return true
		}
	}
	return false
}
