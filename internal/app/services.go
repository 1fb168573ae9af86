package app

import (
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/enrollment-backend/internal/clients/payments"
	"github.com/yungbote/enrollment-backend/internal/data/aggregates"
	domainagg "github.com/yungbote/enrollment-backend/internal/domain/aggregates"
	"github.com/yungbote/enrollment-backend/internal/jobs/pipeline/payment_webhook"
	"github.com/yungbote/enrollment-backend/internal/jobs/runtime"
	"github.com/yungbote/enrollment-backend/internal/jobs/worker"
	"github.com/yungbote/enrollment-backend/internal/observability"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
	"github.com/yungbote/enrollment-backend/internal/pricing"
	"github.com/yungbote/enrollment-backend/internal/services"
)

type Services struct {
	EnrollmentAggregate domainagg.EnrollmentAggregate
	PaymentAggregate    domainagg.PaymentAggregate

	Enrollment   services.EnrollmentService
	WebhookQueue services.WebhookQueue
	QueueHealth  *observability.QueueHealthCollector

	JobRegistry *runtime.Registry
	JobWorker   *worker.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repoSet Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	schedule := pricing.DefaultSchedule()
	if path := strings.TrimSpace(cfg.PricingScheduleFile); path != "" {
		s, err := pricing.LoadSchedule(path)
		if err != nil {
			return Services{}, fmt.Errorf("load pricing schedule: %w", err)
		}
		schedule = s
		log.Info("Loaded pricing schedule", "path", path)
	}

	base := aggregates.BaseDeps{
		DB:       db,
		Log:      log,
		Runner:   aggregates.NewGormTxRunner(db, aggregates.WithIsolation(sql.LevelReadCommitted)),
		Hooks:    aggregates.MultiHooks(aggregates.NewObservabilityHooks(metrics), aggregates.NewLogHooks(log)),
		CASGuard: aggregates.NewCASGuard(db),
	}

	enrollmentAgg := aggregates.NewEnrollmentAggregate(aggregates.EnrollmentAggregateDeps{
		Base:               base,
		Guardians:          repoSet.Guardians,
		Enrollments:        repoSet.Enrollments,
		Students:           repoSet.Students,
		EnrollmentStudents: repoSet.EnrollmentStudents,
		Selections:         repoSet.Selections,
		Payments:           repoSet.Payments,
		History:            repoSet.History,
	})
	paymentAgg := aggregates.NewPaymentAggregate(aggregates.PaymentAggregateDeps{
		Base:        base,
		Enrollments: repoSet.Enrollments,
		Payments:    repoSet.Payments,
		History:     repoSet.History,
	})

	enrollmentService := services.NewEnrollmentService(
		log,
		services.EnrollmentServiceConfig{
			Mode:          cfg.PaymentMode,
			PublicBaseURL: cfg.PublicBaseURL,
			BackURLs: payments.BackURLs{
				Success: cfg.CheckoutSuccess,
				Failure: cfg.CheckoutFailure,
				Pending: cfg.CheckoutPending,
			},
		},
		schedule,
		enrollmentAgg,
		clients.Preferences,
		services.EnrollmentReadRepos{
			Enrollments:        repoSet.Enrollments,
			Payments:           repoSet.Payments,
			History:            repoSet.History,
			EnrollmentStudents: repoSet.EnrollmentStudents,
			Students:           repoSet.Students,
			Selections:         repoSet.Selections,
		},
		metrics,
	)

	queue := services.NewWebhookQueue(db, log, repoSet.WebhookJobs, clients.QueueSignal, metrics, services.WebhookQueueConfig{
		MidtransServerKey: cfg.MidtransServerKey,
	})

	registry := runtime.NewRegistry()
	if err := registry.Register(payment_webhook.New(log, paymentAgg)); err != nil {
		return Services{}, fmt.Errorf("register payment webhook pipeline: %w", err)
	}
	jobWorker := worker.NewWorker(log, queue, registry, metrics, worker.ConfigFromEnv())

	health := observability.NewQueueHealthCollector(log, queue, cfg.HealthThresholds, metrics)

	return Services{
		EnrollmentAggregate: enrollmentAgg,
		PaymentAggregate:    paymentAgg,
		Enrollment:          enrollmentService,
		WebhookQueue:        queue,
		QueueHealth:         health,
		JobRegistry:         registry,
		JobWorker:           jobWorker,
	}, nil
}
