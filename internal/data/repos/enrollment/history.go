package enrollment

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/enrollment-backend/internal/domain"
	"github.com/yungbote/enrollment-backend/internal/platform/dbctx"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

// HistoryRepo is append-only.
type HistoryRepo interface {
	Append(dbc dbctx.Context, h *types.StateHistory) error
	ListByEnrollment(dbc dbctx.Context, enrollmentID uuid.UUID) ([]*types.StateHistory, error)
}

type historyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHistoryRepo(db *gorm.DB, baseLog *logger.Logger) HistoryRepo {
	return &historyRepo{db: db, log: baseLog.With("repo", "HistoryRepo")}
}

func (r *historyRepo) Append(dbc dbctx.Context, h *types.StateHistory) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if h == nil {
		return nil
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).Create(h).Error
}

func (r *historyRepo) ListByEnrollment(dbc dbctx.Context, enrollmentID uuid.UUID) ([]*types.StateHistory, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.StateHistory
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
