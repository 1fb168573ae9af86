package enrollment

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/enrollment-backend/internal/domain"
	"github.com/yungbote/enrollment-backend/internal/platform/dbctx"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

type GuardianRepo interface {
	Create(dbc dbctx.Context, g *types.Guardian) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Guardian, error)
	GetByEmail(dbc dbctx.Context, email string) (*types.Guardian, error)
}

type guardianRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGuardianRepo(db *gorm.DB, baseLog *logger.Logger) GuardianRepo {
	return &guardianRepo{db: db, log: baseLog.With("repo", "GuardianRepo")}
}

func (r *guardianRepo) Create(dbc dbctx.Context, g *types.Guardian) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if g == nil {
		return nil
	}
	g.Email = NormalizeEmail(g.Email)
	return transaction.WithContext(dbc.Ctx).Create(g).Error
}

func (r *guardianRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Guardian, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var g types.Guardian
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// GetByEmail returns nil without error when no guardian owns the email.
func (r *guardianRepo) GetByEmail(dbc dbctx.Context, email string) (*types.Guardian, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	email = NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	var g types.Guardian
	err := transaction.WithContext(dbc.Ctx).Where("email = ?", email).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
