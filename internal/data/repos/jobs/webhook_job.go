package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/enrollment-backend/internal/data/repos/dbutil"
	types "github.com/yungbote/enrollment-backend/internal/domain"
	"github.com/yungbote/enrollment-backend/internal/domain/jobs"
	"github.com/yungbote/enrollment-backend/internal/platform/dbctx"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

type WebhookJobRepo interface {
	// Insert returns false when another open job already holds the dedup key.
	Insert(dbc dbctx.Context, job *types.WebhookJob) (bool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.WebhookJob, error)
	GetOpenByDedupKey(dbc dbctx.Context, key string) (*types.WebhookJob, error)
	// RefreshPayload replaces the payload of a job that has not started yet.
	RefreshPayload(dbc dbctx.Context, id uuid.UUID, payload datatypes.JSON) (bool, error)
	// SetPendingPayload parks a delivery on a job that is currently running.
	SetPendingPayload(dbc dbctx.Context, id uuid.UUID, payload datatypes.JSON) (bool, error)
	ClaimNext(dbc dbctx.Context, now time.Time, staleActive time.Duration) (*types.WebhookJob, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
	MarkCompleted(dbc dbctx.Context, id uuid.UUID, result datatypes.JSON, now time.Time) (bool, error)
	MarkDelayed(dbc dbctx.Context, id uuid.UUID, errMsg string, runAt, now time.Time) (bool, error)
	MarkFailed(dbc dbctx.Context, id uuid.UUID, errMsg string, now time.Time) (bool, error)
	// Requeue moves a dead-lettered job back to waiting with a fresh attempt budget.
	Requeue(dbc dbctx.Context, id uuid.UUID, now time.Time) (bool, error)
	CountByStatus(dbc dbctx.Context) (map[string]int64, error)
	ListByStatus(dbc dbctx.Context, status string, offset, limit int) ([]*types.WebhookJob, error)
	// DeleteFinishedBeyond removes all but the newest keep jobs in a terminal status.
	DeleteFinishedBeyond(dbc dbctx.Context, status string, keep int) (int64, error)
}

type webhookJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWebhookJobRepo(db *gorm.DB, baseLog *logger.Logger) WebhookJobRepo {
	return &webhookJobRepo{
		db:  db,
		log: baseLog.With("repo", "WebhookJobRepo"),
	}
}

func (r *webhookJobRepo) Insert(dbc dbctx.Context, job *types.WebhookJob) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if job == nil {
		return false, nil
	}
	if job.OpenDedupKey == nil && job.DedupKey != "" {
		key := job.DedupKey
		job.OpenDedupKey = &key
	}
	res := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "open_dedup_key"}},
			DoNothing: true,
		}).
		Create(job)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *webhookJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.WebhookJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.WebhookJob
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *webhookJobRepo) GetOpenByDedupKey(dbc dbctx.Context, key string) (*types.WebhookJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if key == "" {
		return nil, nil
	}
	var job types.WebhookJob
	err := dbutil.ForUpdate(transaction.WithContext(dbc.Ctx)).
		Where("open_dedup_key = ? AND status IN ?", key, jobs.OpenStatuses).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *webhookJobRepo) RefreshPayload(dbc dbctx.Context, id uuid.UUID, payload datatypes.JSON) (bool, error) {
	return r.updateIfStatus(dbc, id, []string{jobs.StatusWaiting, jobs.StatusDelayed}, map[string]interface{}{
		"payload": payload,
	})
}

func (r *webhookJobRepo) SetPendingPayload(dbc dbctx.Context, id uuid.UUID, payload datatypes.JSON) (bool, error) {
	return r.updateIfStatus(dbc, id, []string{jobs.StatusActive}, map[string]interface{}{
		"pending_payload": payload,
	})
}

func (r *webhookJobRepo) ClaimNext(dbc dbctx.Context, now time.Time, staleActive time.Duration) (*types.WebhookJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now = now.UTC()
	staleCutoff := now.Add(-staleActive)
	var claimed *types.WebhookJob
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job types.WebhookJob
		q := dbutil.ForUpdateSkipLocked(txx).
			Where(`
        (
          (status IN ? AND run_at <= ?)
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
      `, []string{jobs.StatusWaiting, jobs.StatusDelayed}, now, jobs.StatusActive, staleCutoff).
			Order("priority DESC").
			Order("created_at ASC")
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.WebhookJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       jobs.StatusActive,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		if err := txx.Where("id = ?", job.ID).First(&job).Error; err != nil {
			return err
		}
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *webhookJobRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	return transaction.WithContext(dbc.Ctx).
		Model(&types.WebhookJob{}).
		Where("id = ? AND status = ?", id, jobs.StatusActive).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *webhookJobRepo) MarkCompleted(dbc dbctx.Context, id uuid.UUID, result datatypes.JSON, now time.Time) (bool, error) {
	now = now.UTC()
	return r.updateIfStatus(dbc, id, []string{jobs.StatusActive}, map[string]interface{}{
		"status":          jobs.StatusCompleted,
		"open_dedup_key":  nil,
		"pending_payload": nil,
		"result":          result,
		"finished_at":     now,
		"updated_at":      now,
	})
}

func (r *webhookJobRepo) MarkDelayed(dbc dbctx.Context, id uuid.UUID, errMsg string, runAt, now time.Time) (bool, error) {
	now = now.UTC()
	return r.updateIfStatus(dbc, id, []string{jobs.StatusActive}, map[string]interface{}{
		"status":        jobs.StatusDelayed,
		"run_at":        runAt.UTC(),
		"last_error":    errMsg,
		"last_error_at": now,
		"locked_at":     nil,
		"heartbeat_at":  nil,
		"updated_at":    now,
	})
}

func (r *webhookJobRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, errMsg string, now time.Time) (bool, error) {
	now = now.UTC()
	return r.updateIfStatus(dbc, id, []string{jobs.StatusActive}, map[string]interface{}{
		"status":          jobs.StatusFailed,
		"open_dedup_key":  nil,
		"pending_payload": nil,
		"last_error":      errMsg,
		"last_error_at":   now,
		"finished_at":     now,
		"updated_at":      now,
	})
}

func (r *webhookJobRepo) Requeue(dbc dbctx.Context, id uuid.UUID, now time.Time) (bool, error) {
	now = now.UTC()
	return r.updateIfStatus(dbc, id, []string{jobs.StatusFailed}, map[string]interface{}{
		"status":         jobs.StatusWaiting,
		"open_dedup_key": gorm.Expr("dedup_key"),
		"attempts":       0,
		"run_at":         now,
		"locked_at":      nil,
		"heartbeat_at":   nil,
		"finished_at":    nil,
		"updated_at":     now,
	})
}

func (r *webhookJobRepo) CountByStatus(dbc dbctx.Context) (map[string]int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []struct {
		Status string
		N      int64
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.WebhookJob{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}

func (r *webhookJobRepo) ListByStatus(dbc dbctx.Context, status string, offset, limit int) ([]*types.WebhookJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.WebhookJob
	if status == "" {
		return out, nil
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 50
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("status = ?", status).
		Order("updated_at DESC").
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *webhookJobRepo) DeleteFinishedBeyond(dbc dbctx.Context, status string, keep int) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if status != jobs.StatusCompleted && status != jobs.StatusFailed {
		return 0, nil
	}
	if keep < 0 {
		keep = 0
	}
	newest := transaction.Session(&gorm.Session{NewDB: true}).
		Model(&types.WebhookJob{}).
		Select("id").
		Where("status = ?", status).
		Order("finished_at DESC").
		Order("id DESC").
		Limit(keep)
	res := transaction.WithContext(dbc.Ctx).
		Where("status = ? AND id NOT IN (?)", status, newest).
		Delete(&types.WebhookJob{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *webhookJobRepo) updateIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []string, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.WebhookJob{}).
		Where("id = ? AND status IN ?", id, allowed).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
