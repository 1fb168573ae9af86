package aggregates

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/enrollment-backend/internal/domain"
	"github.com/yungbote/enrollment-backend/internal/domain/enrollment"
	"github.com/yungbote/enrollment-backend/internal/platform/dbctx"
)

// CASGuard moves an enrollment between states only if it is still in the
// state the caller read. A lost race surfaces as a conflict.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

func (g CASGuard) conn(dbc dbctx.Context) (*gorm.DB, error) {
	switch {
	case dbc.Tx != nil:
		return dbc.Tx.WithContext(dbc.Ctx), nil
	case g.db != nil:
		return g.db.WithContext(dbc.Ctx), nil
	default:
		return nil, ValidationError("missing db transaction context")
	}
}

// TransitionState sets state=to where id matches and state=from. It returns
// ErrConflict when no row matched, and refuses edges the state machine does
// not allow.
func (g CASGuard) TransitionState(dbc dbctx.Context, id uuid.UUID, from, to enrollment.State, at time.Time) error {
	if id == uuid.Nil {
		return ValidationError("enrollment id is required")
	}
	if !enrollment.TransitionAllowed(from, to) {
		return InvariantError(fmt.Sprintf("transition %s -> %s is not allowed", from, to))
	}
	db, err := g.conn(dbc)
	if err != nil {
		return err
	}
	res := db.Model(&types.Enrollment{}).
		Where("id = ? AND state = ?", id, from).
		Updates(map[string]any{"state": to, "updated_at": at.UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ConflictError(fmt.Sprintf("enrollment %s is no longer %s", id, from))
	}
	return nil
}
