package worker_test

import (
	"context"
	"strings"
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
	"github.com/yungbote/enrollment-backend/internal/domain/enrollment"
	"github.com/yungbote/enrollment-backend/internal/domain/jobs"
	"github.com/yungbote/enrollment-backend/internal/jobs/pipeline/payment_webhook"
	"github.com/yungbote/enrollment-backend/internal/jobs/runtime"
	"github.com/yungbote/enrollment-backend/internal/jobs/worker"
	"github.com/yungbote/enrollment-backend/internal/platform/ctxutil"
	"github.com/yungbote/enrollment-backend/internal/services"
)

type fixture struct {
	db       *gorm.DB
	queue    services.WebhookQueue
	registry *runtime.Registry
	worker   *worker.Worker
}

func newFixture(t *testing.T, handlers ...runtime.Handler) fixture {
	t.Helper()
	db := repotest.DB(t)
	log := repotest.Logger(t)
	set := repos.NewSet(db, log)
	q := services.NewWebhookQueue(db, log, set.WebhookJobs, nil, nil, services.WebhookQueueConfig{})

	reg := runtime.NewRegistry()
	if len(handlers) == 0 {
		agg := aggregates.NewPaymentAggregate(aggregates.PaymentAggregateDeps{
			Base:        aggregates.BaseDeps{DB: db},
			Enrollments: set.Enrollments,
			Payments:    set.Payments,
			History:     set.History,
		})
		handlers = []runtime.Handler{payment_webhook.New(log, agg)}
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	w := worker.NewWorker(log, q, reg, nil, worker.Config{PollInterval: 10 * time.Millisecond})
	return fixture{db: db, queue: q, registry: reg, worker: w}
}

func approved(ref string) payments.WebhookEvent {
	return payments.WebhookEvent{
		ID:                "mp-9:approved",
		Type:              "payment",
		Action:            "payment.updated",
		Data:              payments.EventData{ID: "mp-9"},
		Status:            "approved",
		ExternalReference: ref,
	}
}

func loadJob(t *testing.T, db *gorm.DB, id uuid.UUID) types.WebhookJob {
	t.Helper()
	var job types.WebhookJob
	if err := db.First(&job, "id = ?", id).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	return job
}

func TestRunOnceAppliesPaymentAndCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, _ := repotest.SeedPendingEnrollment(t, f.db, enrollment.StatePending)

	res, err := f.queue.Enqueue(ctx, approved(e.ID.String()))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	ran, err := f.worker.RunOnce(ctx, 1)
	if err != nil || !ran {
		t.Fatalf("RunOnce: ran=%v err=%v", ran, err)
	}

	job := loadJob(t, f.db, res.Job.ID)
	if job.Status != jobs.StatusCompleted || job.OpenDedupKey != nil {
		t.Fatalf("job: status=%s open_key=%v", job.Status, job.OpenDedupKey)
	}
	var row types.Enrollment
	if err := f.db.First(&row, "id = ?", e.ID).Error; err != nil {
		t.Fatalf("load enrollment: %v", err)
	}
	if row.State != enrollment.StateActive {
		t.Fatalf("enrollment state: want=%s got=%s", enrollment.StateActive, row.State)
	}

	ran, err = f.worker.RunOnce(ctx, 1)
	if err != nil || ran {
		t.Fatalf("empty queue: ran=%v err=%v", ran, err)
	}
}

func TestMissingHandlerDeadLettersImmediately(t *testing.T) {
	f := newFixture(t)
	key := "orphan-1"
	job := &types.WebhookJob{
		ID:           uuid.New(),
		JobType:      "subscription_sync",
		DedupKey:     key,
		OpenDedupKey: &key,
		Status:       jobs.StatusWaiting,
		MaxAttempts:  3,
		RunAt:        time.Now().UTC().Add(-time.Second),
		Payload:      datatypes.JSON(`{}`),
	}
	if err := f.db.Create(job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}

	if _, err := f.worker.RunOnce(context.Background(), 1); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got := loadJob(t, f.db, job.ID)
	if got.Status != jobs.StatusFailed || got.Attempts != 1 {
		t.Fatalf("job: status=%s attempts=%d", got.Status, got.Attempts)
	}
	if !strings.Contains(got.LastError, "no handler registered") {
		t.Fatalf("last_error: %q", got.LastError)
	}
}

type panicHandler struct{}

func (panicHandler) Type() string               { return jobs.JobTypePaymentWebhook }
func (panicHandler) Run(*runtime.Context) error { panic("boom") }

func TestPanicIsRecoveredAndRetried(t *testing.T) {
	f := newFixture(t, panicHandler{})
	ctx := context.Background()

	res, err := f.queue.Enqueue(ctx, approved(uuid.NewString()))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := f.worker.RunOnce(ctx, 1); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	job := loadJob(t, f.db, res.Job.ID)
	if job.Status != jobs.StatusDelayed || job.Attempts != 1 {
		t.Fatalf("job: status=%s attempts=%d", job.Status, job.Attempts)
	}
	if !strings.Contains(job.LastError, "boom") {
		t.Fatalf("last_error: %q", job.LastError)
	}
}

type silentHandler struct{}

func (silentHandler) Type() string               { return jobs.JobTypePaymentWebhook }
func (silentHandler) Run(*runtime.Context) error { return nil }

func TestHandlerThatReturnsNilIsCompleted(t *testing.T) {
	f := newFixture(t, silentHandler{})
	ctx := context.Background()

	res, err := f.queue.Enqueue(ctx, approved(uuid.NewString()))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := f.worker.RunOnce(ctx, 1); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if job := loadJob(t, f.db, res.Job.ID); job.Status != jobs.StatusCompleted {
		t.Fatalf("job status: want=%s got=%s", jobs.StatusCompleted, job.Status)
	}
}

type traceCapture struct{ got *ctxutil.TraceData }

func (*traceCapture) Type() string { return jobs.JobTypePaymentWebhook }
func (h *traceCapture) Run(jc *runtime.Context) error {
	h.got = ctxutil.GetTraceData(jc.Ctx)
	return nil
}

func TestDeliveryTraceIdsReachJobContext(t *testing.T) {
	h := &traceCapture{}
	f := newFixture(t, h)

	reqCtx := ctxutil.WithTraceData(context.Background(), &ctxutil.TraceData{TraceID: "t-1", RequestID: "r-1"})
	res, err := f.queue.Enqueue(reqCtx, approved(uuid.NewString()))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if stored := string(loadJob(t, f.db, res.Job.ID).Payload); !strings.Contains(stored, `"trace_id":"t-1"`) {
		t.Fatalf("payload should carry trace_id, got=%s", stored)
	}
	if _, err := f.worker.RunOnce(context.Background(), 1); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if h.got == nil || h.got.TraceID != "t-1" || h.got.RequestID != "r-1" {
		t.Fatalf("job trace data: want=t-1/r-1 got=%+v", h.got)
	}
}

func TestPausedQueueClaimsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.queue.Enqueue(ctx, approved(uuid.NewString())); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := f.queue.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	ran, err := f.worker.RunOnce(ctx, 1)
	if err != nil || ran {
		t.Fatalf("paused: ran=%v err=%v", ran, err)
	}
	if err := f.queue.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if ran, _ := f.worker.RunOnce(ctx, 1); !ran {
		t.Fatalf("resumed queue should run the job")
	}
}

func TestStartDrainsOnWake(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, _ := repotest.SeedPendingEnrollment(t, f.db, enrollment.StatePending)

	f.worker.Start(ctx)
	res, err := f.queue.Enqueue(ctx, approved(e.ID.String()))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if loadJob(t, f.db, res.Job.ID).Status == jobs.StatusCompleted {
			cancel()
			f.worker.Wait()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job was not processed in time")
}
