package enrollment

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Guardian is the paying account holder. Email is the natural key.
type Guardian struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"column:email;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;not null" json:"-"`
	FirstName    string    `gorm:"column:first_name;not null" json:"first_name"`
	LastName     string    `gorm:"column:last_name;not null" json:"last_name"`
	Phone        string    `gorm:"column:phone" json:"phone,omitempty"`
	Students     []Student `gorm:"foreignKey:GuardianID;constraint:OnDelete:CASCADE" json:"students,omitempty"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (Guardian) TableName() string { return "guardian" }

func (g *Guardian) BeforeCreate(*gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}
