package enrollment

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/enrollment-backend/internal/domain"
	"github.com/yungbote/enrollment-backend/internal/platform/dbctx"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

type StudentRepo interface {
	Create(dbc dbctx.Context, s *types.Student) error
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Student, error)
	ListByGuardian(dbc dbctx.Context, guardianID uuid.UUID) ([]*types.Student, error)
}

type studentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudentRepo(db *gorm.DB, baseLog *logger.Logger) StudentRepo {
	return &studentRepo{db: db, log: baseLog.With("repo", "StudentRepo")}
}

func (r *studentRepo) Create(dbc dbctx.Context, s *types.Student) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if s == nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Create(s).Error
}

func (r *studentRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Student, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Student
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *studentRepo) ListByGuardian(dbc dbctx.Context, guardianID uuid.UUID) ([]*types.Student, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Student
	if guardianID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("guardian_id = ?", guardianID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type EnrollmentStudentRepo interface {
	Create(dbc dbctx.Context, link *types.EnrollmentStudent) error
	// PINExists reports whether any enrollment already holds pin.
	PINExists(dbc dbctx.Context, pin string) (bool, error)
	ListByEnrollment(dbc dbctx.Context, enrollmentID uuid.UUID) ([]*types.EnrollmentStudent, error)
}

type enrollmentStudentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEnrollmentStudentRepo(db *gorm.DB, baseLog *logger.Logger) EnrollmentStudentRepo {
	return &enrollmentStudentRepo{db: db, log: baseLog.With("repo", "EnrollmentStudentRepo")}
}

func (r *enrollmentStudentRepo) Create(dbc dbctx.Context, link *types.EnrollmentStudent) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if link == nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Create(link).Error
}

func (r *enrollmentStudentRepo) PINExists(dbc dbctx.Context, pin string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if pin == "" {
		return false, nil
	}
	var count int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.EnrollmentStudent{}).
		Where("pin = ?", pin).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *enrollmentStudentRepo) ListByEnrollment(dbc dbctx.Context, enrollmentID uuid.UUID) ([]*types.EnrollmentStudent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.EnrollmentStudent
	if enrollmentID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("enrollment_id = ?", enrollmentID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
