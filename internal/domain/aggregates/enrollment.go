package aggregates

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yungbote/enrollment-backend/internal/domain/enrollment"
)

var EnrollmentAggregateContract = Contract{
	Name:             "Enrollment.EnrollmentAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Replay:           ReplayConflict,
	Tables: []string{
		"guardian", "enrollment", "student", "enrollment_student",
		"course_selection", "world_selection", "payment", "enrollment_state_history",
	},
	Notes: "Creates guardian, enrollment, students, selections, payment and the initial history row as one unit.",
}

// EnrollmentAggregate owns enrollment creation.
//
// Create either commits every row it names or none of them. Failures carry
// CodeValidation, CodeConflict, CodeResourceExhausted, CodeRetryable or
// CodeInternal.
type EnrollmentAggregate interface {
	Aggregate

	Create(ctx context.Context, in CreateEnrollmentInput) (CreateEnrollmentResult, error)
}

type CreateEnrollmentInput struct {
	// EnrollmentID is minted by the caller so it can be handed to the payment
	// provider as external reference before the transaction starts.
	EnrollmentID uuid.UUID
	Guardian     GuardianInput
	Kind         enrollment.Kind
	FeePaid      decimal.Decimal
	DiscountPct  decimal.Decimal
	MonthlyTotal decimal.Decimal
	Origin       json.RawMessage
	Students     []StudentInput
	Payment      PaymentInput
}

type GuardianInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

type StudentInput struct {
	Name       string
	Age        int
	NationalID string
	Courses    []PricedSelection
	World      *PricedSelection
}

type PricedSelection struct {
	ID           string
	MonthlyPrice decimal.Decimal
}

type PaymentInput struct {
	Amount       decimal.Decimal
	PreferenceID string
	CheckoutURL  string
}

type CreateEnrollmentResult struct {
	EnrollmentID    uuid.UUID
	GuardianID      uuid.UUID
	GuardianCreated bool
	PaymentID       uuid.UUID
	Students        []CreatedStudent
}

type CreatedStudent struct {
	ID          uuid.UUID
	Name        string
	LoginHandle string
	PIN         string
}
