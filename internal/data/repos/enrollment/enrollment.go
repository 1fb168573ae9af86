package enrollment

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/enrollment-backend/internal/data/repos/dbutil"
	types "github.com/yungbote/enrollment-backend/internal/domain"
	"github.com/yungbote/enrollment-backend/internal/domain/enrollment"
	"github.com/yungbote/enrollment-backend/internal/platform/dbctx"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

type EnrollmentRepo interface {
	Create(dbc dbctx.Context, e *types.Enrollment) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Enrollment, error)
	// LockByID reads the row under FOR UPDATE where the dialect supports it.
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Enrollment, error)
	ListByGuardian(dbc dbctx.Context, guardianID uuid.UUID) ([]*types.Enrollment, error)
	CountByState(dbc dbctx.Context) (map[enrollment.State]int64, error)
}

type enrollmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEnrollmentRepo(db *gorm.DB, baseLog *logger.Logger) EnrollmentRepo {
	return &enrollmentRepo{db: db, log: baseLog.With("repo", "EnrollmentRepo")}
}

func (r *enrollmentRepo) Create(dbc dbctx.Context, e *types.Enrollment) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if e == nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Create(e).Error
}

func (r *enrollmentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Enrollment, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return r.get(transaction.WithContext(dbc.Ctx), id)
}

func (r *enrollmentRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Enrollment, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return r.get(dbutil.ForUpdate(transaction.WithContext(dbc.Ctx)), id)
}

func (r *enrollmentRepo) get(q *gorm.DB, id uuid.UUID) (*types.Enrollment, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var e types.Enrollment
	err := q.Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *enrollmentRepo) ListByGuardian(dbc dbctx.Context, guardianID uuid.UUID) ([]*types.Enrollment, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Enrollment
	if guardianID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("guardian_id = ?", guardianID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *enrollmentRepo) CountByState(dbc dbctx.Context) (map[enrollment.State]int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []struct {
		State enrollment.State
		N     int64
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Enrollment{}).
		Select("state, COUNT(*) AS n").
		Group("state").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[enrollment.State]int64, len(rows))
	for _, row := range rows {
		out[row.State] = row.N
	}
	return out, nil
}

// touch is shared by repos that bump updated_at on partial updates.
func touch(updates map[string]interface{}) map[string]interface{} {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return updates
}
