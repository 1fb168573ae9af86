package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/enrollment-backend/internal/http/handlers"
	httpMW "github.com/yungbote/enrollment-backend/internal/http/middleware"
	"github.com/yungbote/enrollment-backend/internal/observability"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

const defaultMaxWebhookBody = 1 << 20

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	WebhookSigningSecret string
	MaxWebhookBodyBytes  int64
	AdminAuth            *httpMW.AdminAuth

	EnrollmentHandler   *httpH.EnrollmentHandler
	WebhookHandler      *httpH.WebhookHandler
	QueueAdminHandler   *httpH.QueueAdminHandler
	HealthHandler       *httpH.HealthHandler
	MockCheckoutHandler *httpH.MockCheckoutHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/health/queue", cfg.HealthHandler.QueueHealth)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	// Mock checkout (mock payment mode only)
	if cfg.MockCheckoutHandler != nil {
		r.SetHTMLTemplate(httpH.MockCheckoutPage)
		r.GET("/mock-checkout/:id", cfg.MockCheckoutHandler.Page)
		r.POST("/mock-checkout/:id/pay", cfg.MockCheckoutHandler.Pay)
	}

	api := r.Group("/api")
	{
		// Enrollment
		if cfg.EnrollmentHandler != nil {
			api.POST("/enrollments", cfg.EnrollmentHandler.Create)
			api.GET("/enrollments/:id", cfg.EnrollmentHandler.Get)
		}

		// Provider webhooks
		if cfg.WebhookHandler != nil {
			maxBody := cfg.MaxWebhookBodyBytes
			if maxBody <= 0 {
				maxBody = defaultMaxWebhookBody
			}
			api.POST("/webhooks/payments",
				httpMW.CaptureRawBody(maxBody),
				httpMW.VerifyWebhookSignature(cfg.Log, cfg.WebhookSigningSecret),
				cfg.WebhookHandler.Receive,
			)
		}
	}

	admin := api.Group("/admin/webhook-queue")
	{
		// Middleware
		if cfg.AdminAuth != nil {
			admin.Use(cfg.AdminAuth.RequireAdmin())
		}

		if cfg.QueueAdminHandler != nil {
			admin.GET("/stats", cfg.QueueAdminHandler.Stats)
			admin.GET("/failed", cfg.QueueAdminHandler.Failed)
			admin.POST("/jobs/:id/retry", cfg.QueueAdminHandler.Retry)
			admin.POST("/pause", cfg.QueueAdminHandler.Pause)
			admin.POST("/resume", cfg.QueueAdminHandler.Resume)
		}
	}

	return r
}
