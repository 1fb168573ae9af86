package app

import (
	apphttp "github.com/yungbote/enrollment-backend/internal/http"
	httpH "github.com/yungbote/enrollment-backend/internal/http/handlers"
	httpMW "github.com/yungbote/enrollment-backend/internal/http/middleware"
	"github.com/yungbote/enrollment-backend/internal/observability"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
	"github.com/yungbote/enrollment-backend/internal/services"
)

type Middleware struct {
	AdminAuth *httpMW.AdminAuth
}

type Handlers struct {
	Health       *httpH.HealthHandler
	Enrollment   *httpH.EnrollmentHandler
	Webhook      *httpH.WebhookHandler
	QueueAdmin   *httpH.QueueAdminHandler
	MockCheckout *httpH.MockCheckoutHandler
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		AdminAuth: httpMW.NewAdminAuth(log, cfg.AdminJWTSecret),
	}
}

func wireHandlers(log *logger.Logger, cfg Config, svc Services) Handlers {
	log.Info("Wiring handlers...")
	h := Handlers{
		Health:     httpH.NewHealthHandler(svc.QueueHealth),
		Enrollment: httpH.NewEnrollmentHandler(log, svc.Enrollment),
		Webhook:    httpH.NewWebhookHandler(log, svc.WebhookQueue),
		QueueAdmin: httpH.NewQueueAdminHandler(log, svc.WebhookQueue),
	}
	if cfg.PaymentMode == services.PaymentModeMock {
		h.MockCheckout = httpH.NewMockCheckoutHandler(log, svc.Enrollment, svc.WebhookQueue)
	}
	return h
}

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *apphttp.Server {
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:                  log,
		Metrics:              metrics,
		ServiceName:          cfg.ServiceName,
		CORSOrigins:          cfg.CORSOrigins,
		WebhookSigningSecret: cfg.WebhookSigningSecret,
		MaxWebhookBodyBytes:  cfg.WebhookMaxBodyBytes,
		AdminAuth:            middleware.AdminAuth,
		EnrollmentHandler:    handlers.Enrollment,
		WebhookHandler:       handlers.Webhook,
		QueueAdminHandler:    handlers.QueueAdmin,
		HealthHandler:        handlers.Health,
		MockCheckoutHandler:  handlers.MockCheckout,
	})
}
