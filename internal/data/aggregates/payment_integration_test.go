package aggregates_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/enrollment-backend/internal/data/aggregates"
	aggtest "github.com/yungbote/enrollment-backend/internal/data/aggregates/testutil"
	"github.com/yungbote/enrollment-backend/internal/data/repos"
	repotest "github.com/yungbote/enrollment-backend/internal/data/repos/testutil"
	types "github.com/yungbote/enrollment-backend/internal/domain"
	domainagg "github.com/yungbote/enrollment-backend/internal/domain/aggregates"
	"github.com/yungbote/enrollment-backend/internal/domain/enrollment"
)

func newPaymentAggregate(t *testing.T, db *gorm.DB, runner aggregates.TxRunner, hooks aggregates.Hooks) domainagg.PaymentAggregate {
	t.Helper()
	set := repos.NewSet(db, repotest.Logger(t))
	return aggregates.NewPaymentAggregate(aggregates.PaymentAggregateDeps{
		Base:        aggregates.BaseDeps{DB: db, Runner: runner, Hooks: hooks},
		Enrollments: set.Enrollments,
		Payments:    set.Payments,
		History:     set.History,
	})
}

func loadState(t *testing.T, db *gorm.DB, id uuid.UUID) (enrollment.State, *types.Payment) {
	t.Helper()
	var e types.Enrollment
	if err := db.First(&e, "id = ?", id).Error; err != nil {
		t.Fatalf("load enrollment: %v", err)
	}
	var p types.Payment
	if err := db.First(&p, "enrollment_id = ?", id).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	return e.State, &p
}

func TestPaymentAggregateApprovedIsIdempotent(t *testing.T) {
	db := repotest.DB(t)
	e, _ := repotest.SeedPendingEnrollment(t, db, enrollment.StatePending)
	agg := newPaymentAggregate(t, db, nil, nil)
	ctx := context.Background()

	in := domainagg.ApplyPaymentStatusInput{
		EnrollmentID:      e.ID,
		Status:            enrollment.PaymentPaid,
		ProviderStatus:    "approved",
		ProviderPaymentID: "mp-123",
		ObservedAt:        time.Now().UTC(),
	}
	res, err := agg.ApplyStatus(ctx, in)
	if err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	if !res.Changed || res.PreviousState != enrollment.StatePending || res.State != enrollment.StateActive {
		t.Fatalf("result: got=%+v", res)
	}
	state, p := loadState(t, db, e.ID)
	if state != enrollment.StateActive || p.Status != enrollment.PaymentPaid || p.ProviderPaymentID != "mp-123" || p.PaidAt == nil {
		t.Fatalf("persisted: state=%s payment=%+v", state, p)
	}
	if n := repotest.Count(t, db, &types.StateHistory{}); n != 2 {
		t.Fatalf("history after first delivery: want=2 got=%d", n)
	}

	replay, err := agg.ApplyStatus(ctx, in)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.Changed {
		t.Fatalf("replay must not change anything: %+v", replay)
	}
	if n := repotest.Count(t, db, &types.StateHistory{}); n != 2 {
		t.Fatalf("history after replay: want=2 got=%d", n)
	}
}

func TestPaymentAggregateTransitions(t *testing.T) {
	cases := []struct {
		name      string
		from      enrollment.State
		status    enrollment.PaymentStatus
		wantState enrollment.State
		changed   bool
		ignored   bool
	}{
		{"pending_to_failed", enrollment.StatePending, enrollment.PaymentFailed, enrollment.StatePaymentFailed, true, false},
		{"failed_to_active", enrollment.StatePaymentFailed, enrollment.PaymentPaid, enrollment.StateActive, true, false},
		{"failed_to_pending", enrollment.StatePaymentFailed, enrollment.PaymentPending, enrollment.StatePending, true, false},
		{"pending_stays_pending", enrollment.StatePending, enrollment.PaymentPending, enrollment.StatePending, false, false},
		{"active_ignores_failure", enrollment.StateActive, enrollment.PaymentFailed, enrollment.StateActive, false, true},
		{"active_ignores_pending", enrollment.StateActive, enrollment.PaymentPending, enrollment.StateActive, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := repotest.DB(t)
			e, _ := repotest.SeedPendingEnrollment(t, db, tc.from)
			agg := newPaymentAggregate(t, db, nil, nil)

			res, err := agg.ApplyStatus(context.Background(), domainagg.ApplyPaymentStatusInput{
				EnrollmentID:   e.ID,
				Status:         tc.status,
				ProviderStatus: string(tc.status),
			})
			if err != nil {
				t.Fatalf("ApplyStatus: %v", err)
			}
			if res.Changed != tc.changed || res.Ignored != tc.ignored || res.State != tc.wantState {
				t.Fatalf("result: want state=%s changed=%v ignored=%v got=%+v", tc.wantState, tc.changed, tc.ignored, res)
			}
			state, _ := loadState(t, db, e.ID)
			if state != tc.wantState {
				t.Fatalf("persisted state: want=%s got=%s", tc.wantState, state)
			}
			wantHistory := int64(1)
			if tc.changed {
				wantHistory = 2
			}
			if n := repotest.Count(t, db, &types.StateHistory{}); n != wantHistory {
				t.Fatalf("history rows: want=%d got=%d", wantHistory, n)
			}
		})
	}
}

func TestPaymentAggregateUnknownEnrollment(t *testing.T) {
	db := repotest.DB(t)
	agg := newPaymentAggregate(t, db, nil, nil)

	_, err := agg.ApplyStatus(context.Background(), domainagg.ApplyPaymentStatusInput{
		EnrollmentID: uuid.New(),
		Status:       enrollment.PaymentPaid,
	})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("code: want=%s got=%v", domainagg.CodeNotFound, err)
	}
	if domainagg.Retryable(err) {
		t.Fatalf("missing enrollment must not be retried")
	}
}

func TestPaymentAggregateRollsBackAndReportsRetry(t *testing.T) {
	db := repotest.DB(t)
	e, _ := repotest.SeedPendingEnrollment(t, db, enrollment.StatePending)
	hooks := &aggtest.HooksRecorder{}
	runner := &aggtest.InjectedTxRunner{DB: db, FailCommit: aggregates.RetryableError("serialization failure")}
	agg := newPaymentAggregate(t, db, runner, hooks)

	_, err := agg.ApplyStatus(context.Background(), domainagg.ApplyPaymentStatusInput{
		EnrollmentID: e.ID,
		Status:       enrollment.PaymentPaid,
	})
	if !domainagg.IsCode(err, domainagg.CodeRetryable) || !errors.Is(err, aggregates.ErrRetryable) {
		t.Fatalf("code: want=%s got=%v", domainagg.CodeRetryable, err)
	}
	if len(hooks.Retries) != 1 {
		t.Fatalf("retry hook: want=1 got=%d", len(hooks.Retries))
	}
	state, p := loadState(t, db, e.ID)
	if state != enrollment.StatePending || p.Status != enrollment.PaymentPending {
		t.Fatalf("rolled back state: got=%s/%s", state, p.Status)
	}
}
