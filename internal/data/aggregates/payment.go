package aggregates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/enrollment-backend/internal/data/repos"
	types "github.com/yungbote/enrollment-backend/internal/domain"
	domainagg "github.com/yungbote/enrollment-backend/internal/domain/aggregates"
	"github.com/yungbote/enrollment-backend/internal/domain/enrollment"
	"github.com/yungbote/enrollment-backend/internal/platform/dbctx"
)

type PaymentAggregateDeps struct {
	Base BaseDeps

	Enrollments repos.EnrollmentRepo
	Payments    repos.PaymentRepo
	History     repos.HistoryRepo
}

type paymentAggregate struct {
	deps PaymentAggregateDeps
}

func NewPaymentAggregate(deps PaymentAggregateDeps) domainagg.PaymentAggregate {
	deps.Base = deps.Base.withDefaults()
	return &paymentAggregate{deps: deps}
}

func (a *paymentAggregate) Contract() domainagg.Contract {
	return domainagg.PaymentAggregateContract
}

func (a *paymentAggregate) ApplyStatus(ctx context.Context, in domainagg.ApplyPaymentStatusInput) (domainagg.ApplyPaymentStatusResult, error) {
	const op = "Enrollment.Payment.ApplyStatus"
	var out domainagg.ApplyPaymentStatusResult

	if in.EnrollmentID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing enrollment_id", nil)
	}
	switch in.Status {
	case enrollment.PaymentPending, enrollment.PaymentPaid, enrollment.PaymentFailed:
	default:
		return out, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("unknown payment status %q", in.Status), nil)
	}
	if a.deps.Enrollments == nil || a.deps.Payments == nil || a.deps.History == nil {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "payment aggregate repos not configured", nil)
	}
	observedAt := in.ObservedAt.UTC()
	if in.ObservedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.ApplyPaymentStatusResult{EnrollmentID: in.EnrollmentID}

		payment, err := a.deps.Payments.LockByEnrollmentID(dbc, in.EnrollmentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("payment not found for enrollment %s", in.EnrollmentID), nil)
		}
		row, err := a.deps.Enrollments.LockByID(dbc, in.EnrollmentID)
		if err != nil {
			return err
		}
		if row == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("enrollment not found: %s", in.EnrollmentID), nil)
		}
		out.PaymentID = payment.ID
		out.PreviousState = row.State
		out.State = row.State

		target := enrollment.StateForPayment(in.Status)
		if target == row.State {
			return nil
		}
		if !enrollment.TransitionAllowed(row.State, target) {
			out.Ignored = true
			return nil
		}

		if err := a.deps.Base.CASGuard.TransitionState(dbc, row.ID, row.State, target, observedAt); err != nil {
			return err
		}

		updates := map[string]interface{}{
			"status":          in.Status,
			"provider_status": strings.TrimSpace(in.ProviderStatus),
			"updated_at":      observedAt,
		}
		if id := strings.TrimSpace(in.ProviderPaymentID); id != "" {
			updates["provider_payment_id"] = id
		}
		switch in.Status {
		case enrollment.PaymentPaid:
			updates["paid_at"] = observedAt
		case enrollment.PaymentFailed:
			updates["failed_at"] = observedAt
		}
		if err := a.deps.Payments.UpdateFields(dbc, payment.ID, updates); err != nil {
			return err
		}

		if err := a.deps.History.Append(dbc, &types.StateHistory{
			EnrollmentID:  row.ID,
			PreviousState: row.State,
			NewState:      target,
			Reason:        transitionReason(in),
			Actor:         enrollment.ActorPaymentWebhook,
			CreatedAt:     observedAt,
		}); err != nil {
			return err
		}

		out.State = target
		out.Changed = true
		return nil
	})
	if err != nil {
		return domainagg.ApplyPaymentStatusResult{}, err
	}
	return out, nil
}

func transitionReason(in domainagg.ApplyPaymentStatusInput) string {
	status := strings.TrimSpace(in.ProviderStatus)
	if status == "" {
		status = string(in.Status)
	}
	return "webhook:" + status
}
