package enrollment

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Student struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	GuardianID    uuid.UUID `gorm:"type:uuid;column:guardian_id;not null;index" json:"guardian_id"`
	Name          string    `gorm:"column:name;not null" json:"name"`
	Age           int       `gorm:"column:age;not null" json:"age"`
	LoginHandle   string    `gorm:"column:login_handle;not null;index" json:"login_handle"`
	PINHash       string    `gorm:"column:pin_hash;not null" json:"-"`
	MustChangePIN bool      `gorm:"column:must_change_pin;not null" json:"must_change_pin"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (Student) TableName() string { return "student" }

func (s *Student) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// EnrollmentStudent links a student to one enrollment and snapshots the
// enrollment-time attributes. PIN is unique across the whole table.
type EnrollmentStudent struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EnrollmentID    uuid.UUID `gorm:"type:uuid;column:enrollment_id;not null;uniqueIndex:idx_enrollment_student_pair" json:"enrollment_id"`
	StudentID       uuid.UUID `gorm:"type:uuid;column:student_id;not null;uniqueIndex:idx_enrollment_student_pair" json:"student_id"`
	PIN             string    `gorm:"column:pin;not null;uniqueIndex" json:"-"`
	AgeAtEnrollment int       `gorm:"column:age_at_enrollment;not null" json:"age_at_enrollment"`
	NationalID      string    `gorm:"column:national_id" json:"national_id,omitempty"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
}

func (EnrollmentStudent) TableName() string { return "enrollment_student" }

func (l *EnrollmentStudent) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
