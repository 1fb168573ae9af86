package payment_webhook_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/enrollment-backend/internal/clients/payments"
	"github.com/yungbote/enrollment-backend/internal/data/aggregates"
	"github.com/yungbote/enrollment-backend/internal/data/repos"
	repotest "github.com/yungbote/enrollment-backend/internal/data/repos/testutil"
	types "github.com/yungbote/enrollment-backend/internal/domain"
	domainagg "github.com/yungbote/enrollment-backend/internal/domain/aggregates"
	"github.com/yungbote/enrollment-backend/internal/domain/enrollment"
	"github.com/yungbote/enrollment-backend/internal/domain/jobs"
	"github.com/yungbote/enrollment-backend/internal/jobs/pipeline/payment_webhook"
	jobrt "github.com/yungbote/enrollment-backend/internal/jobs/runtime"
)

type recorder struct {
	results []map[string]any
	errs    []error
}

func (r *recorder) Heartbeat(context.Context, uuid.UUID) error { return nil }

func (r *recorder) Complete(_ context.Context, _ *types.WebhookJob, result any) error {
	m, _ := result.(map[string]any)
	r.results = append(r.results, m)
	return nil
}

func (r *recorder) Fail(_ context.Context, _ *types.WebhookJob, cause error) (bool, error) {
	r.errs = append(r.errs, cause)
	return jobs.IsPermanent(cause), nil
}

func newPipeline(t *testing.T, db *gorm.DB) *payment_webhook.Pipeline {
	t.Helper()
	log := repotest.Logger(t)
	set := repos.NewSet(db, log)
	agg := aggregates.NewPaymentAggregate(aggregates.PaymentAggregateDeps{
		Base:        aggregates.BaseDeps{DB: db},
		Enrollments: set.Enrollments,
		Payments:    set.Payments,
		History:     set.History,
	})
	return payment_webhook.New(log, agg)
}

func jobFor(t *testing.T, ev payments.WebhookEvent) *types.WebhookJob {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return &types.WebhookJob{
		ID:          uuid.New(),
		JobType:     jobs.JobTypePaymentWebhook,
		DedupKey:    ev.PaymentID(),
		Attempts:    1,
		MaxAttempts: 3,
		Payload:     datatypes.JSON(b),
	}
}

func event(ref, status string) payments.WebhookEvent {
	return payments.WebhookEvent{
		ID:                payments.FlexString("mp-1:" + status),
		Type:              "payment",
		Action:            "payment.updated",
		Data:              payments.EventData{ID: "mp-1"},
		DateCreated:       "2026-03-01T10:00:00Z",
		Status:            status,
		ExternalReference: ref,
	}
}

func run(t *testing.T, p *payment_webhook.Pipeline, job *types.WebhookJob) *recorder {
	t.Helper()
	rec := &recorder{}
	if err := p.Run(jobrt.NewContext(context.Background(), job, rec)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return rec
}

func TestApprovedThenReplayIsIdempotent(t *testing.T) {
	db := repotest.DB(t)
	e, _ := repotest.SeedPendingEnrollment(t, db, enrollment.StatePending)
	p := newPipeline(t, db)

	first := run(t, p, jobFor(t, event(e.ID.String(), "approved")))
	if len(first.errs) != 0 || len(first.results) != 1 {
		t.Fatalf("first delivery: errs=%v results=%v", first.errs, first.results)
	}
	if first.results[0]["changed"] != true || first.results[0]["state"] != string(enrollment.StateActive) {
		t.Fatalf("first result: %v", first.results[0])
	}
	if n := repotest.Count(t, db, &types.StateHistory{}); n != 2 {
		t.Fatalf("history after first delivery: want=2 got=%d", n)
	}

	replay := run(t, p, jobFor(t, event(e.ID.String(), "approved")))
	if len(replay.errs) != 0 || replay.results[0]["changed"] != false {
		t.Fatalf("replay: errs=%v results=%v", replay.errs, replay.results)
	}
	if n := repotest.Count(t, db, &types.StateHistory{}); n != 2 {
		t.Fatalf("history after replay: want=2 got=%d", n)
	}

	var pay types.Payment
	if err := db.First(&pay, "enrollment_id = ?", e.ID).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if pay.Status != enrollment.PaymentPaid || pay.ProviderPaymentID != "mp-1" {
		t.Fatalf("payment: %+v", pay)
	}
}

func TestMidtransLocalTimeStampsPaidAtInUTC(t *testing.T) {
	db := repotest.DB(t)
	e, _ := repotest.SeedPendingEnrollment(t, db, enrollment.StatePending)
	p := newPipeline(t, db)

	ev := event(e.ID.String(), "settlement")
	ev.DateCreated = "2026-03-01 17:00:00"
	if rec := run(t, p, jobFor(t, ev)); len(rec.errs) != 0 {
		t.Fatalf("run: errs=%v", rec.errs)
	}

	var pay types.Payment
	if err := db.First(&pay, "enrollment_id = ?", e.ID).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if pay.PaidAt == nil || !pay.PaidAt.Equal(want) {
		t.Fatalf("paid_at: want=%s got=%v", want, pay.PaidAt)
	}
}

func TestRejectedMovesToPaymentFailed(t *testing.T) {
	db := repotest.DB(t)
	e, _ := repotest.SeedPendingEnrollment(t, db, enrollment.StatePending)
	p := newPipeline(t, db)

	rec := run(t, p, jobFor(t, event(e.ID.String(), "rejected")))
	if len(rec.errs) != 0 || rec.results[0]["state"] != string(enrollment.StatePaymentFailed) {
		t.Fatalf("rejected: errs=%v results=%v", rec.errs, rec.results)
	}
}

func TestInvalidReferenceIsPermanent(t *testing.T) {
	db := repotest.DB(t)
	p := newPipeline(t, db)

	rec := run(t, p, jobFor(t, event("order-42", "approved")))
	if len(rec.errs) != 1 || !jobs.IsPermanent(rec.errs[0]) {
		t.Fatalf("want one permanent failure, got=%v", rec.errs)
	}
}

func TestUnknownEnrollmentIsRetryable(t *testing.T) {
	db := repotest.DB(t)
	p := newPipeline(t, db)

	rec := run(t, p, jobFor(t, event(uuid.NewString(), "approved")))
	if len(rec.errs) != 1 {
		t.Fatalf("want one failure, got=%v", rec.errs)
	}
	if jobs.IsPermanent(rec.errs[0]) || !domainagg.IsCode(rec.errs[0], domainagg.CodeNotFound) {
		t.Fatalf("missing enrollment should fail retryably with not_found, got=%v", rec.errs[0])
	}
}

func TestMerchantOrderIsSkipped(t *testing.T) {
	db := repotest.DB(t)
	p := newPipeline(t, db)
	ev := event("", "")
	ev.Type = "merchant_order"

	rec := run(t, p, jobFor(t, ev))
	if len(rec.errs) != 0 || len(rec.results) != 1 || rec.results[0]["stage"] != "skipped" {
		t.Fatalf("merchant_order: errs=%v results=%v", rec.errs, rec.results)
	}
	if n := repotest.Count(t, db, &types.StateHistory{}); n != 0 {
		t.Fatalf("skipped event must not write history, got=%d", n)
	}
}
