package payment_webhook

import (
	domainagg "github.com/yungbote/enrollment-backend/internal/domain/aggregates"
	"github.com/yungbote/enrollment-backend/internal/domain/jobs"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

type Pipeline struct {
	log      *logger.Logger
	payments domainagg.PaymentAggregate
}

func New(baseLog *logger.Logger, payments domainagg.PaymentAggregate) *Pipeline {
	return &Pipeline{
		log:      baseLog.With("job", jobs.JobTypePaymentWebhook),
		payments: payments,
	}
}

func (p *Pipeline) Type() string { return jobs.JobTypePaymentWebhook }
