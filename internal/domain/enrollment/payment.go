package enrollment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment is 1:1 with Enrollment. After creation only the webhook
// pipeline mutates it.
type Payment struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	EnrollmentID      uuid.UUID       `gorm:"type:uuid;column:enrollment_id;not null;uniqueIndex" json:"enrollment_id"`
	Amount            decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	PreferenceID      string          `gorm:"column:preference_id;not null;index" json:"preference_id"`
	CheckoutURL       string          `gorm:"column:checkout_url" json:"checkout_url"`
	Status            PaymentStatus   `gorm:"column:status;not null;index" json:"status"`
	ProviderPaymentID string          `gorm:"column:provider_payment_id;index" json:"provider_payment_id,omitempty"`
	ProviderStatus    string          `gorm:"column:provider_status" json:"provider_status,omitempty"`
	PaidAt            *time.Time      `gorm:"column:paid_at" json:"paid_at,omitempty"`
	FailedAt          *time.Time      `gorm:"column:failed_at" json:"failed_at,omitempty"`
	CreatedAt         time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"not null" json:"updated_at"`
}

func (Payment) TableName() string { return "payment" }

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
