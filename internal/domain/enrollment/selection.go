package enrollment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CourseSelection struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	EnrollmentStudentID uuid.UUID       `gorm:"type:uuid;column:enrollment_student_id;not null;uniqueIndex:idx_course_selection_slot" json:"enrollment_student_id"`
	Position            int             `gorm:"column:position;not null;uniqueIndex:idx_course_selection_slot" json:"position"`
	CourseID            string          `gorm:"column:course_id;not null;index" json:"course_id"`
	MonthlyPrice        decimal.Decimal `gorm:"column:monthly_price;type:numeric(12,2);not null" json:"monthly_price"`
	CreatedAt           time.Time       `gorm:"not null" json:"created_at"`
}

func (CourseSelection) TableName() string { return "course_selection" }

func (c *CourseSelection) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type WorldSelection struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	EnrollmentStudentID uuid.UUID       `gorm:"type:uuid;column:enrollment_student_id;not null;uniqueIndex" json:"enrollment_student_id"`
	WorldID             string          `gorm:"column:world_id;not null;index" json:"world_id"`
	MonthlyPrice        decimal.Decimal `gorm:"column:monthly_price;type:numeric(12,2);not null" json:"monthly_price"`
	CreatedAt           time.Time       `gorm:"not null" json:"created_at"`
}

func (WorldSelection) TableName() string { return "world_selection" }

func (w *WorldSelection) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
