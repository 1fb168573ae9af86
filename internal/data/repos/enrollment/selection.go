package enrollment

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/enrollment-backend/internal/domain"
	"github.com/yungbote/enrollment-backend/internal/platform/dbctx"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

type SelectionRepo interface {
	CreateCourses(dbc dbctx.Context, rows []*types.CourseSelection) error
	CreateWorlds(dbc dbctx.Context, rows []*types.WorldSelection) error
	ListCourses(dbc dbctx.Context, linkIDs []uuid.UUID) ([]*types.CourseSelection, error)
	ListWorlds(dbc dbctx.Context, linkIDs []uuid.UUID) ([]*types.WorldSelection, error)
}

type selectionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSelectionRepo(db *gorm.DB, baseLog *logger.Logger) SelectionRepo {
	return &selectionRepo{db: db, log: baseLog.With("repo", "SelectionRepo")}
}

func (r *selectionRepo) CreateCourses(dbc dbctx.Context, rows []*types.CourseSelection) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Create(&rows).Error
}

func (r *selectionRepo) CreateWorlds(dbc dbctx.Context, rows []*types.WorldSelection) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Create(&rows).Error
}

func (r *selectionRepo) ListCourses(dbc dbctx.Context, linkIDs []uuid.UUID) ([]*types.CourseSelection, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CourseSelection
	if len(linkIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("enrollment_student_id IN ?", linkIDs).
		Order("enrollment_student_id ASC, position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *selectionRepo) ListWorlds(dbc dbctx.Context, linkIDs []uuid.UUID) ([]*types.WorldSelection, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.WorldSelection
	if len(linkIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("enrollment_student_id IN ?", linkIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
