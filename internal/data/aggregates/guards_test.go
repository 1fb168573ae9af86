package aggregates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/enrollment-backend/internal/data/repos/testutil"
	types "github.com/yungbote/enrollment-backend/internal/domain"
	"github.com/yungbote/enrollment-backend/internal/domain/enrollment"
	"github.com/yungbote/enrollment-backend/internal/platform/dbctx"
)

func TestCASGuardTransitionState(t *testing.T) {
	db := testutil.DB(t)
	e, _ := testutil.SeedPendingEnrollment(t, db, enrollment.StatePending)
	guard := NewCASGuard(db)
	dbc := dbctx.Context{Ctx: context.Background()}
	at := time.Now()

	// Stale read: the row is pending, not payment_failed.
	err := guard.TransitionState(dbc, e.ID, enrollment.StatePaymentFailed, enrollment.StateActive, at)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("stale from-state: want conflict got=%v", err)
	}

	if err := guard.TransitionState(dbc, e.ID, enrollment.StatePending, enrollment.StateActive, at); err != nil {
		t.Fatalf("pending -> active: %v", err)
	}
	var got types.Enrollment
	if err := db.First(&got, "id = ?", e.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.State != enrollment.StateActive {
		t.Fatalf("state: want=active got=%s", got.State)
	}

	err = guard.TransitionState(dbc, e.ID, enrollment.StateActive, enrollment.StatePending, at)
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("active is terminal: want invariant got=%v", err)
	}
	if err := guard.TransitionState(dbc, uuid.Nil, enrollment.StatePending, enrollment.StateActive, at); !errors.Is(err, ErrValidation) {
		t.Fatalf("nil id: want validation got=%v", err)
	}
}
