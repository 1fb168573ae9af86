package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	types "github.com/yungbote/enrollment-backend/internal/domain"
	"github.com/yungbote/enrollment-backend/internal/domain/enrollment"
)

// TableCounts is the number of rows per enrollment table.
type TableCounts struct {
	Guardians, Students, Enrollments, Links, Courses, Worlds, Payments, History int64
}

func (c TableCounts) Total() int64 {
	return c.Guardians + c.Students + c.Enrollments + c.Links + c.Courses + c.Worlds + c.Payments + c.History
}

func CountAll(tb testing.TB, gdb *gorm.DB) TableCounts {
	tb.Helper()
	return TableCounts{
		Guardians:   Count(tb, gdb, &types.Guardian{}),
		Students:    Count(tb, gdb, &types.Student{}),
		Enrollments: Count(tb, gdb, &types.Enrollment{}),
		Links:       Count(tb, gdb, &types.EnrollmentStudent{}),
		Courses:     Count(tb, gdb, &types.CourseSelection{}),
		Worlds:      Count(tb, gdb, &types.WorldSelection{}),
		Payments:    Count(tb, gdb, &types.Payment{}),
		History:     Count(tb, gdb, &types.StateHistory{}),
	}
}

func SeedGuardian(tb testing.TB, gdb *gorm.DB, email string) *types.Guardian {
	tb.Helper()
	g := &types.Guardian{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "x",
		FirstName:    "Ana",
		LastName:     "Perez",
	}
	if err := gdb.Create(g).Error; err != nil {
		tb.Fatalf("seed guardian: %v", err)
	}
	return g
}

// SeedPendingEnrollment creates an enrollment in state with its payment row.
func SeedPendingEnrollment(tb testing.TB, gdb *gorm.DB, state enrollment.State) (*types.Enrollment, *types.Payment) {
	tb.Helper()
	g := SeedGuardian(tb, gdb, uuid.NewString()+"@example.com")
	e := &types.Enrollment{
		ID:           uuid.New(),
		GuardianID:   g.ID,
		Kind:         enrollment.KindColonia,
		State:        state,
		FeePaid:      decimal.NewFromInt(15000),
		DiscountPct:  decimal.Zero,
		MonthlyTotal: decimal.NewFromInt(25000),
	}
	if err := gdb.Create(e).Error; err != nil {
		tb.Fatalf("seed enrollment: %v", err)
	}
	status := enrollment.PaymentPending
	switch state {
	case enrollment.StateActive:
		status = enrollment.PaymentPaid
	case enrollment.StatePaymentFailed:
		status = enrollment.PaymentFailed
	}
	p := &types.Payment{
		ID:           uuid.New(),
		EnrollmentID: e.ID,
		Amount:       decimal.NewFromInt(15000),
		PreferenceID: "pref-seed",
		Status:       status,
	}
	if err := gdb.Create(p).Error; err != nil {
		tb.Fatalf("seed payment: %v", err)
	}
	h := &types.StateHistory{
		EnrollmentID:  e.ID,
		PreviousState: enrollment.StateNone,
		NewState:      enrollment.StatePending,
		Reason:        enrollment.ReasonEnrollmentCreated,
		Actor:         enrollment.ActorSystem,
		CreatedAt:     time.Now().UTC(),
	}
	if err := gdb.Create(h).Error; err != nil {
		tb.Fatalf("seed history: %v", err)
	}
	return e, p
}
