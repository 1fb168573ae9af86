package domain

import (
	"github.com/yungbote/enrollment-backend/internal/domain/enrollment"
	"github.com/yungbote/enrollment-backend/internal/domain/jobs"
)

type Guardian = enrollment.Guardian
type Enrollment = enrollment.Enrollment
type Student = enrollment.Student
type EnrollmentStudent = enrollment.EnrollmentStudent
type CourseSelection = enrollment.CourseSelection
type WorldSelection = enrollment.WorldSelection
type Payment = enrollment.Payment
type StateHistory = enrollment.StateHistory

type WebhookJob = jobs.WebhookJob

// Models lists every persisted type in migration order.
func Models() []interface{} {
	return []interface{}{
		&Guardian{},
		&Student{},
		&Enrollment{},
		&EnrollmentStudent{},
		&CourseSelection{},
		&WorldSelection{},
		&Payment{},
		&StateHistory{},
		&WebhookJob{},
	}
}
