package enrollment

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StateHistory is append-only; rows are never updated or deleted.
type StateHistory struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EnrollmentID  uuid.UUID `gorm:"type:uuid;column:enrollment_id;not null;index" json:"enrollment_id"`
	PreviousState State     `gorm:"column:previous_state;not null" json:"previous_state"`
	NewState      State     `gorm:"column:new_state;not null" json:"new_state"`
	Reason        string    `gorm:"column:reason;not null" json:"reason"`
	Actor         string    `gorm:"column:actor;not null" json:"actor"`
	CreatedAt     time.Time `gorm:"not null;index" json:"created_at"`
}

func (StateHistory) TableName() string { return "enrollment_state_history" }

func (h *StateHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
