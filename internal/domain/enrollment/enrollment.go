package enrollment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Enrollment struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	GuardianID   uuid.UUID       `gorm:"type:uuid;column:guardian_id;not null;index" json:"guardian_id"`
	Kind         Kind            `gorm:"column:kind;not null;index" json:"kind"`
	State        State           `gorm:"column:state;not null;index" json:"state"`
	FeePaid      decimal.Decimal `gorm:"column:fee_paid;type:numeric(12,2);not null" json:"fee_paid"`
	DiscountPct  decimal.Decimal `gorm:"column:discount_pct;type:numeric(5,2);not null" json:"discount_pct"`
	MonthlyTotal decimal.Decimal `gorm:"column:monthly_total;type:numeric(12,2);not null" json:"monthly_total"`
	Origin       datatypes.JSON  `gorm:"column:origin;type:jsonb" json:"origin,omitempty"`
	CreatedAt    time.Time       `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null" json:"updated_at"`
}

func (Enrollment) TableName() string { return "enrollment" }

func (e *Enrollment) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
