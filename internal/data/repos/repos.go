package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/enrollment-backend/internal/data/repos/enrollment"
	"github.com/yungbote/enrollment-backend/internal/data/repos/jobs"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

type GuardianRepo = enrollment.GuardianRepo
type EnrollmentRepo = enrollment.EnrollmentRepo
type StudentRepo = enrollment.StudentRepo
type EnrollmentStudentRepo = enrollment.EnrollmentStudentRepo
type SelectionRepo = enrollment.SelectionRepo
type PaymentRepo = enrollment.PaymentRepo
type HistoryRepo = enrollment.HistoryRepo

type WebhookJobRepo = jobs.WebhookJobRepo

func NewGuardianRepo(db *gorm.DB, baseLog *logger.Logger) GuardianRepo {
	return enrollment.NewGuardianRepo(db, baseLog)
}
func NewEnrollmentRepo(db *gorm.DB, baseLog *logger.Logger) EnrollmentRepo {
	return enrollment.NewEnrollmentRepo(db, baseLog)
}
func NewStudentRepo(db *gorm.DB, baseLog *logger.Logger) StudentRepo {
	return enrollment.NewStudentRepo(db, baseLog)
}
func NewEnrollmentStudentRepo(db *gorm.DB, baseLog *logger.Logger) EnrollmentStudentRepo {
	return enrollment.NewEnrollmentStudentRepo(db, baseLog)
}
func NewSelectionRepo(db *gorm.DB, baseLog *logger.Logger) SelectionRepo {
	return enrollment.NewSelectionRepo(db, baseLog)
}
func NewPaymentRepo(db *gorm.DB, baseLog *logger.Logger) PaymentRepo {
	return enrollment.NewPaymentRepo(db, baseLog)
}
func NewHistoryRepo(db *gorm.DB, baseLog *logger.Logger) HistoryRepo {
	return enrollment.NewHistoryRepo(db, baseLog)
}

func NewWebhookJobRepo(db *gorm.DB, baseLog *logger.Logger) WebhookJobRepo {
	return jobs.NewWebhookJobRepo(db, baseLog)
}

// Set bundles every repo for wiring.
type Set struct {
	Guardians          GuardianRepo
	Enrollments        EnrollmentRepo
	Students           StudentRepo
	EnrollmentStudents EnrollmentStudentRepo
	Selections         SelectionRepo
	Payments           PaymentRepo
	History            HistoryRepo
	WebhookJobs        WebhookJobRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Guardians:          NewGuardianRepo(db, baseLog),
		Enrollments:        NewEnrollmentRepo(db, baseLog),
		Students:           NewStudentRepo(db, baseLog),
		EnrollmentStudents: NewEnrollmentStudentRepo(db, baseLog),
		Selections:         NewSelectionRepo(db, baseLog),
		Payments:           NewPaymentRepo(db, baseLog),
		History:            NewHistoryRepo(db, baseLog),
		WebhookJobs:        NewWebhookJobRepo(db, baseLog),
	}
}
