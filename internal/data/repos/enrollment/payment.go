package enrollment

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/enrollment-backend/internal/data/repos/dbutil"
	types "github.com/yungbote/enrollment-backend/internal/domain"
	"github.com/yungbote/enrollment-backend/internal/platform/dbctx"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

type PaymentRepo interface {
	Create(dbc dbctx.Context, p *types.Payment) error
	GetByEnrollmentID(dbc dbctx.Context, enrollmentID uuid.UUID) (*types.Payment, error)
	LockByEnrollmentID(dbc dbctx.Context, enrollmentID uuid.UUID) (*types.Payment, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type paymentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPaymentRepo(db *gorm.DB, baseLog *logger.Logger) PaymentRepo {
	return &paymentRepo{db: db, log: baseLog.With("repo", "PaymentRepo")}
}

func (r *paymentRepo) Create(dbc dbctx.Context, p *types.Payment) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if p == nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Create(p).Error
}

func (r *paymentRepo) GetByEnrollmentID(dbc dbctx.Context, enrollmentID uuid.UUID) (*types.Payment, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return r.get(transaction.WithContext(dbc.Ctx), enrollmentID)
}

func (r *paymentRepo) LockByEnrollmentID(dbc dbctx.Context, enrollmentID uuid.UUID) (*types.Payment, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return r.get(dbutil.ForUpdate(transaction.WithContext(dbc.Ctx)), enrollmentID)
}

func (r *paymentRepo) get(q *gorm.DB, enrollmentID uuid.UUID) (*types.Payment, error) {
	if enrollmentID == uuid.Nil {
		return nil, nil
	}
	var p types.Payment
	err := q.Where("enrollment_id = ?", enrollmentID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Payment{}).
		Where("id = ?", id).
		Updates(touch(updates)).Error
}
