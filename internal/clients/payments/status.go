package payments

import (
	"strings"

	"github.com/yungbote/enrollment-backend/internal/domain/enrollment"
)

// MapPaymentStatus folds provider statuses into the internal tri-state.
// Anything not known to be settled or terminally negative stays pending.
func MapPaymentStatus(providerStatus string) enrollment.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "approved", "settlement", "capture":
		return enrollment.PaymentPaid
	case "rejected", "cancelled", "canceled", "refunded", "charged_back",
		"deny", "cancel", "expire", "expired", "failure":
		return enrollment.PaymentFailed
	default:
		return enrollment.PaymentPending
	}
}
