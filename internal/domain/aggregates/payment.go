package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/enrollment-backend/internal/domain/enrollment"
)

var PaymentAggregateContract = Contract{
	Name:             "Enrollment.PaymentAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Replay:           ReplayNoop,
	Tables:           []string{"payment", "enrollment", "enrollment_state_history"},
	Notes:            "Applies provider payment outcomes to payment + enrollment state and appends history.",
}

// PaymentAggregate applies provider outcomes idempotently: replaying the
// same outcome is a no-op that writes nothing.
type PaymentAggregate interface {
	Aggregate

	ApplyStatus(ctx context.Context, in ApplyPaymentStatusInput) (ApplyPaymentStatusResult, error)
}

type ApplyPaymentStatusInput struct {
	EnrollmentID      uuid.UUID
	Status            enrollment.PaymentStatus
	ProviderStatus    string
	ProviderPaymentID string
	ObservedAt        time.Time
}

type ApplyPaymentStatusResult struct {
	EnrollmentID  uuid.UUID
	PaymentID     uuid.UUID
	PreviousState enrollment.State
	State         enrollment.State
	Changed       bool
	// Ignored is set when the derived transition is not allowed from the
	// current state (e.g. a late "pending" for an active enrollment).
	Ignored bool
}
