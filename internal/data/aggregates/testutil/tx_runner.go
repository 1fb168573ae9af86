package testutil

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"

	"github.com/yungbote/enrollment-backend/internal/data/aggregates"
	"github.com/yungbote/enrollment-backend/internal/platform/dbctx"
)

// InjectedTxRunner injects failures at the begin, pre-body and commit points
// of a transaction. With DB set the body runs inside a real transaction that
// is rolled back on any failure, so tests can assert nothing was persisted.
type InjectedTxRunner struct {
	mu sync.Mutex

	DB *gorm.DB

	FailBegin      error
	FailBeforeBody error
	FailCommit     error

	BeginCalls    int
	CommitCalls   int
	RollbackCalls int
}

var _ aggregates.TxRunner = (*InjectedTxRunner)(nil)

var errInjectedRollback = errors.New("injected rollback")

func (r *InjectedTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.BeginCalls++
	failBegin := r.FailBegin
	failBeforeBody := r.FailBeforeBody
	failCommit := r.FailCommit
	r.mu.Unlock()

	if failBegin != nil {
		return failBegin
	}
	if failBeforeBody != nil {
		r.count(&r.RollbackCalls)
		return failBeforeBody
	}
	if fn == nil {
		r.count(&r.CommitCalls)
		return nil
	}

	var err error
	if r.DB != nil {
		err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if bodyErr := fn(dbctx.Context{Ctx: ctx, Tx: tx}); bodyErr != nil {
				return bodyErr
			}
			if failCommit != nil {
				return errInjectedRollback
			}
			return nil
		})
		if errors.Is(err, errInjectedRollback) {
			err = failCommit
		}
	} else {
		err = fn(dbctx.Context{Ctx: ctx})
		if err == nil && failCommit != nil {
			err = failCommit
		}
	}
	if err != nil {
		r.count(&r.RollbackCalls)
		return err
	}
	r.count(&r.CommitCalls)
	return nil
}

func (r *InjectedTxRunner) count(field *int) {
	r.mu.Lock()
	*field++
	r.mu.Unlock()
}
