package payment_webhook

import (
	"fmt"
	"time"

	"github.com/yungbote/enrollment-backend/internal/clients/payments"
	domainagg "github.com/yungbote/enrollment-backend/internal/domain/aggregates"
	"github.com/yungbote/enrollment-backend/internal/domain/jobs"
	jobrt "github.com/yungbote/enrollment-backend/internal/jobs/runtime"
	"github.com/yungbote/enrollment-backend/internal/platform/ctxutil"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	log := p.log.With(ctxutil.LogFields(jc.Ctx)...).With("job_id", jc.Job.ID, "dedup_key", jc.Job.DedupKey)

	var ev payments.WebhookEvent
	if err := jc.DecodePayload(&ev); err != nil {
		jc.Fail("decode", jobs.Permanent(err))
		return nil
	}

	if ev.EventType() != payments.EventPayment {
		// Merchant-order notifications carry no payment outcome of their own.
		jc.Succeed("skipped", map[string]any{"event_type": string(ev.EventType())})
		return nil
	}

	enrollmentID, ok := jc.PayloadUUID("external_reference")
	if !ok {
		jc.Fail("decode", jobs.Permanent(fmt.Errorf("external_reference %q is not an enrollment id", ev.ExternalReference)))
		return nil
	}

	status := payments.MapPaymentStatus(ev.Status)
	res, err := p.payments.ApplyStatus(jc.Ctx, domainagg.ApplyPaymentStatusInput{
		EnrollmentID:      enrollmentID,
		Status:            status,
		ProviderStatus:    ev.Status,
		ProviderPaymentID: ev.PaymentID(),
		ObservedAt:        observedAt(ev.DateCreated),
	})
	if err != nil {
		if domainagg.IsCode(err, domainagg.CodeValidation) {
			err = jobs.Permanent(err)
		}
		jc.Fail("apply", err)
		return nil
	}

	switch {
	case res.Ignored:
		log.Info("payment outcome ignored for current state",
			"enrollment_id", enrollmentID, "state", res.State, "payment_status", status)
	case res.Changed:
		log.Info("payment outcome applied",
			"enrollment_id", enrollmentID, "from", res.PreviousState, "to", res.State, "payment_status", status)
	}

	jc.Succeed("done", map[string]any{
		"enrollment_id":  enrollmentID.String(),
		"payment_id":     res.PaymentID.String(),
		"payment_status": string(status),
		"previous_state": string(res.PreviousState),
		"state":          string(res.State),
		"changed":        res.Changed,
		"ignored":        res.Ignored,
	})
	return nil
}

func observedAt(raw string) time.Time {
	if t, ok := payments.ParseEventTime(raw); ok {
		return t
	}
	return time.Now().UTC()
}
