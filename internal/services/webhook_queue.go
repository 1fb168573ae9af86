package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/enrollment-backend/internal/clients/payments"
	redisclient "github.com/yungbote/enrollment-backend/internal/clients/redis"
	"github.com/yungbote/enrollment-backend/internal/data/repos"
	types "github.com/yungbote/enrollment-backend/internal/domain"
	domainagg "github.com/yungbote/enrollment-backend/internal/domain/aggregates"
	"github.com/yungbote/enrollment-backend/internal/domain/jobs"
	"github.com/yungbote/enrollment-backend/internal/observability"
	"github.com/yungbote/enrollment-backend/internal/platform/breaker"
	"github.com/yungbote/enrollment-backend/internal/platform/ctxutil"
	"github.com/yungbote/enrollment-backend/internal/platform/dbctx"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

const WebhookQueueName = "payment-webhooks"

const (
	defaultMaxAttempts     = 3
	defaultBaseBackoff     = 2 * time.Second
	defaultKeepCompleted   = 100
	defaultKeepFailed      = 500
	defaultCleanupInterval = time.Minute
	defaultStaleActive     = 5 * time.Minute
	maxFailedPageSize      = 200
	enqueueRaceRetries     = 3
)

var errEnqueueRace = errors.New("open job changed during enqueue")

type WebhookQueueConfig struct {
	MaxAttempts     int
	BaseBackoff     time.Duration
	KeepCompleted   int
	KeepFailed      int
	CleanupInterval time.Duration
	// StaleActive is how long an active job may go without a heartbeat
	// before another worker reclaims it.
	StaleActive time.Duration
	// MidtransServerKey verifies raw Midtrans notifications when set.
	MidtransServerKey string
	Now               func() time.Time
}

func (c WebhookQueueConfig) withDefaults() WebhookQueueConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = defaultBaseBackoff
	}
	if c.KeepCompleted <= 0 {
		c.KeepCompleted = defaultKeepCompleted
	}
	if c.KeepFailed <= 0 {
		c.KeepFailed = defaultKeepFailed
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = defaultCleanupInterval
	}
	if c.StaleActive <= 0 {
		c.StaleActive = defaultStaleActive
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// BackoffDelay is base * 2^(attempt-1): 2s, 4s, 8s for the default base.
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		attempt = 16
	}
	return base * time.Duration(1<<uint(attempt-1))
}

type EnqueueResult struct {
	Job       *types.WebhookJob `json:"job,omitempty"`
	Collapsed bool              `json:"collapsed"`
	// Dropped is set for event types this service does not process.
	Dropped bool `json:"dropped"`
}

type CleanupResult struct {
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

type WebhookQueue interface {
	// EnqueueWebhook decodes a raw provider delivery and enqueues it.
	EnqueueWebhook(ctx context.Context, raw []byte) (*EnqueueResult, error)
	Enqueue(ctx context.Context, ev payments.WebhookEvent) (*EnqueueResult, error)

	GetStats(ctx context.Context) (observability.QueueSnapshot, error)
	GetFailedJobs(ctx context.Context, offset, limit int) ([]*types.WebhookJob, error)
	Retry(ctx context.Context, jobID uuid.UUID) (*types.WebhookJob, error)

	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	IsPaused(ctx context.Context) bool

	Claim(ctx context.Context) (*types.WebhookJob, error)
	Heartbeat(ctx context.Context, jobID uuid.UUID) error
	Complete(ctx context.Context, job *types.WebhookJob, result any) error
	// Fail schedules a retry with backoff or dead-letters the job. It
	// reports whether the job was dead-lettered.
	Fail(ctx context.Context, job *types.WebhookJob, cause error) (bool, error)

	Cleanup(ctx context.Context) (CleanupResult, error)
	StartCleanup(ctx context.Context)
	// StartSignals forwards cross-process wake-ups into Wake.
	StartSignals(ctx context.Context) error
	Wake() <-chan struct{}
}

type webhookQueue struct {
	db      *gorm.DB
	log     *logger.Logger
	repo    repos.WebhookJobRepo
	signal  redisclient.QueueSignal
	metrics *observability.Metrics
	cfg     WebhookQueueConfig

	paused      atomic.Bool
	pauseReader *breaker.Breaker[bool]
	wake        chan struct{}
}

func NewWebhookQueue(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo repos.WebhookJobRepo,
	signal redisclient.QueueSignal,
	metrics *observability.Metrics,
	cfg WebhookQueueConfig,
) WebhookQueue {
	q := &webhookQueue{
		db:      db,
		log:     baseLog.With("service", "WebhookQueue"),
		repo:    repo,
		signal:  signal,
		metrics: metrics,
		cfg:     cfg.withDefaults(),
		wake:    make(chan struct{}, 1),
	}
	// The shared pause flag is advisory; when Redis is unreachable workers
	// keep honoring the last value they saw.
	q.pauseReader = breaker.New[bool](
		breaker.Config{
			Name:             "queue_pause_flag",
			FailureThreshold: 3,
			Cooldown:         15 * time.Second,
			OnStateChange: func(name string, from, to breaker.State) {
				q.log.Warn("circuit state changed", "breaker", name, "from", from, "to", to)
			},
		},
		breaker.WithFallback[bool](func(_ context.Context, cause error) (bool, error) {
			if !errors.Is(cause, breaker.ErrOpen) {
				q.log.Warn("pause flag lookup failed, using last known value", "error", cause)
			}
			return q.paused.Load(), nil
		}),
	)
	return q
}

func (q *webhookQueue) now() time.Time { return q.cfg.Now().UTC() }

func (q *webhookQueue) EnqueueWebhook(ctx context.Context, raw []byte) (*EnqueueResult, error) {
	ev, err := payments.DecodeWebhook(raw, payments.DecodeOptions{
		MidtransServerKey: q.cfg.MidtransServerKey,
		Now:               q.cfg.Now,
	})
	if err != nil {
		q.metrics.IncWebhookReceived("rejected")
		return nil, domainagg.Wrap(domainagg.CodeValidation, "WebhookQueue.EnqueueWebhook", err)
	}
	return q.Enqueue(ctx, ev)
}

func (q *webhookQueue) Enqueue(ctx context.Context, ev payments.WebhookEvent) (*EnqueueResult, error) {
	const op = "WebhookQueue.Enqueue"

	if ev.EventType() == payments.EventUnknown {
		q.metrics.IncWebhookReceived("dropped")
		q.log.Info("webhook with unknown type dropped", "type", ev.Type, "event_id", ev.ID.String())
		return &EnqueueResult{Dropped: true}, nil
	}
	key := ev.PaymentID()
	if key == "" {
		q.metrics.IncWebhookReceived("rejected")
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "webhook has no payment id", nil)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	payload = withTraceFields(ctx, payload)

	var res *EnqueueResult
	for attempt := 0; attempt < enqueueRaceRetries; attempt++ {
		res, err = q.enqueueOnce(ctx, key, datatypes.JSON(payload))
		if !errors.Is(err, errEnqueueRace) {
			break
		}
	}
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}

	disposition := "queued"
	if res.Collapsed {
		disposition = "collapsed"
	}
	q.metrics.IncWebhookReceived(disposition)
	q.log.With(ctxutil.LogFields(ctx)...).Debug("webhook enqueued", "job_id", res.Job.ID, "dedup_key", key, "collapsed", res.Collapsed, "status", res.Job.Status)
	q.notify(ctx)
	return res, nil
}

// withTraceFields stamps the delivering request's trace and request ids into
// the job payload; the worker restores them onto the job context.
func withTraceFields(ctx context.Context, payload []byte) []byte {
	fields := ctxutil.LogFields(ctx)
	if len(fields) == 0 {
		return payload
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(payload, &m); err != nil || m == nil {
		return payload
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		if raw, err := json.Marshal(fields[i+1]); err == nil {
			m[key] = raw
		}
	}
	out, err := json.Marshal(m)
	if err != nil {
		return payload
	}
	return out
}

// enqueueOnce inserts a job or folds the delivery into the open job holding
// the same dedup key.
func (q *webhookQueue) enqueueOnce(ctx context.Context, key string, payload datatypes.JSON) (*EnqueueResult, error) {
	var out *EnqueueResult
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		now := q.now()
		job := &types.WebhookJob{
			JobType:     jobs.JobTypePaymentWebhook,
			DedupKey:    key,
			Status:      jobs.StatusWaiting,
			MaxAttempts: q.cfg.MaxAttempts,
			RunAt:       now,
			Payload:     payload,
		}
		inserted, err := q.repo.Insert(dbc, job)
		if err != nil {
			return err
		}
		if inserted {
			out = &EnqueueResult{Job: job}
			return nil
		}

		open, err := q.repo.GetOpenByDedupKey(dbc, key)
		if err != nil {
			return err
		}
		if open == nil || !open.IsOpen() {
			return errEnqueueRace
		}
		var ok bool
		switch open.Status {
		case jobs.StatusWaiting, jobs.StatusDelayed:
			ok, err = q.repo.RefreshPayload(dbc, open.ID, payload)
			open.Payload = payload
		case jobs.StatusActive:
			ok, err = q.repo.SetPendingPayload(dbc, open.ID, payload)
			open.PendingPayload = payload
		}
		if err != nil {
			return err
		}
		if !ok {
			return errEnqueueRace
		}
		out = &EnqueueResult{Job: open, Collapsed: true}
		return nil
	})
	return out, err
}

func (q *webhookQueue) GetStats(ctx context.Context) (observability.QueueSnapshot, error) {
	counts, err := q.repo.CountByStatus(dbctx.Context{Ctx: ctx})
	if err != nil {
		return observability.QueueSnapshot{}, err
	}
	return observability.QueueSnapshot{
		Waiting:   counts[jobs.StatusWaiting],
		Active:    counts[jobs.StatusActive],
		Completed: counts[jobs.StatusCompleted],
		Failed:    counts[jobs.StatusFailed],
		Delayed:   counts[jobs.StatusDelayed],
	}, nil
}

func (q *webhookQueue) GetFailedJobs(ctx context.Context, offset, limit int) ([]*types.WebhookJob, error) {
	if limit <= 0 || limit > maxFailedPageSize {
		limit = maxFailedPageSize
	}
	return q.repo.ListByStatus(dbctx.Context{Ctx: ctx}, jobs.StatusFailed, offset, limit)
}

func (q *webhookQueue) Retry(ctx context.Context, jobID uuid.UUID) (*types.WebhookJob, error) {
	const op = "WebhookQueue.Retry"
	var out *types.WebhookJob
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		job, err := q.repo.GetByID(dbc, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
		}
		if job.Status != jobs.StatusFailed {
			return domainagg.NewError(domainagg.CodePreconditionFailed, op, fmt.Sprintf("job is %s, only failed jobs can be retried", job.Status), nil)
		}
		open, err := q.repo.GetOpenByDedupKey(dbc, job.DedupKey)
		if err != nil {
			return err
		}
		if open != nil {
			return domainagg.NewError(domainagg.CodeConflict, op, fmt.Sprintf("job %s is already open for the same payment", open.ID), nil)
		}
		ok, err := q.repo.Requeue(dbc, job.ID, q.now())
		if err != nil {
			return err
		}
		if !ok {
			return domainagg.NewError(domainagg.CodeConflict, op, "job changed while retrying", nil)
		}
		out, err = q.repo.GetByID(dbc, job.ID)
		return err
	})
	if err != nil {
		var ae *domainagg.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	q.log.Info("dead-lettered job re-queued", "job_id", out.ID, "dedup_key", out.DedupKey)
	q.notify(ctx)
	return out, nil
}

func (q *webhookQueue) Pause(ctx context.Context) error  { return q.setPaused(ctx, true) }
func (q *webhookQueue) Resume(ctx context.Context) error { return q.setPaused(ctx, false) }

func (q *webhookQueue) setPaused(ctx context.Context, paused bool) error {
	if q.signal != nil {
		if err := q.signal.SetPaused(ctx, WebhookQueueName, paused); err != nil {
			return domainagg.Wrap(domainagg.CodeRetryable, "WebhookQueue.SetPaused", err)
		}
	}
	q.paused.Store(paused)
	q.log.Info("webhook queue pause changed", "paused", paused)
	if !paused {
		q.notify(ctx)
	}
	return nil
}

func (q *webhookQueue) IsPaused(ctx context.Context) bool {
	if q.signal == nil {
		return q.paused.Load()
	}
	paused, _ := q.pauseReader.Do(ctx, func(ctx context.Context) (bool, error) {
		v, err := q.signal.IsPaused(ctx, WebhookQueueName)
		if err != nil {
			return false, err
		}
		q.paused.Store(v)
		return v, nil
	})
	return paused
}

func (q *webhookQueue) Claim(ctx context.Context) (*types.WebhookJob, error) {
	return q.repo.ClaimNext(dbctx.Context{Ctx: ctx}, q.now(), q.cfg.StaleActive)
}

func (q *webhookQueue) Heartbeat(ctx context.Context, jobID uuid.UUID) error {
	return q.repo.Heartbeat(dbctx.Context{Ctx: ctx}, jobID)
}

func (q *webhookQueue) Complete(ctx context.Context, job *types.WebhookJob, result any) error {
	var resultJSON datatypes.JSON
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return err
		}
		resultJSON = datatypes.JSON(b)
	}
	done, err := q.finish(ctx, job, func(dbc dbctx.Context, now time.Time) (bool, error) {
		return q.repo.MarkCompleted(dbc, job.ID, resultJSON, now)
	})
	if err != nil {
		return err
	}
	if !done {
		q.log.Warn("job lease lost before completion was recorded", "job_id", job.ID)
	}
	return nil
}

func (q *webhookQueue) Fail(ctx context.Context, job *types.WebhookJob, cause error) (bool, error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if job.Attempts < job.MaxAttempts && !jobs.IsPermanent(cause) {
		now := q.now()
		delay := BackoffDelay(q.cfg.BaseBackoff, job.Attempts)
		ok, err := q.repo.MarkDelayed(dbctx.Context{Ctx: ctx}, job.ID, msg, now.Add(delay), now)
		if err != nil {
			return false, err
		}
		if !ok {
			q.log.Warn("job lease lost before retry could be scheduled", "job_id", job.ID)
			return false, nil
		}
		q.log.Warn("webhook job failed, retry scheduled",
			"job_id", job.ID, "attempt", job.Attempts, "max_attempts", job.MaxAttempts, "delay", delay.String(), "error", msg)
		return false, nil
	}

	done, err := q.finish(ctx, job, func(dbc dbctx.Context, now time.Time) (bool, error) {
		return q.repo.MarkFailed(dbc, job.ID, msg, now)
	})
	if err != nil {
		return false, err
	}
	if !done {
		q.log.Warn("job lease lost before dead-lettering", "job_id", job.ID)
		return false, nil
	}
	q.log.Error("webhook job dead-lettered",
		"job_id", job.ID, "dedup_key", job.DedupKey, "attempts", job.Attempts, "error", msg)
	return true, nil
}

// finish moves an active job to a terminal status and re-queues a delivery
// that arrived while it was running.
func (q *webhookQueue) finish(ctx context.Context, job *types.WebhookJob, mark func(dbc dbctx.Context, now time.Time) (bool, error)) (bool, error) {
	var requeued *types.WebhookJob
	var done bool
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		current, err := q.repo.GetOpenByDedupKey(dbc, job.DedupKey)
		if err != nil {
			return err
		}
		if current == nil || current.ID != job.ID {
			return nil
		}
		done, err = mark(dbc, q.now())
		if err != nil {
			return err
		}
		if !done || len(current.PendingPayload) == 0 {
			return nil
		}
		next := &types.WebhookJob{
			JobType:     current.JobType,
			DedupKey:    current.DedupKey,
			Status:      jobs.StatusWaiting,
			Priority:    current.Priority,
			MaxAttempts: current.MaxAttempts,
			RunAt:       q.now(),
			Payload:     current.PendingPayload,
		}
		inserted, err := q.repo.Insert(dbc, next)
		if err != nil {
			return err
		}
		if inserted {
			requeued = next
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if requeued != nil {
		q.log.Info("pending delivery re-queued", "job_id", requeued.ID, "previous_job_id", job.ID, "dedup_key", job.DedupKey)
		q.notify(ctx)
	}
	return done, nil
}

func (q *webhookQueue) Cleanup(ctx context.Context) (CleanupResult, error) {
	dbc := dbctx.Context{Ctx: ctx}
	var out CleanupResult
	var err error
	if out.Completed, err = q.repo.DeleteFinishedBeyond(dbc, jobs.StatusCompleted, q.cfg.KeepCompleted); err != nil {
		return out, err
	}
	if out.Failed, err = q.repo.DeleteFinishedBeyond(dbc, jobs.StatusFailed, q.cfg.KeepFailed); err != nil {
		return out, err
	}
	if out.Completed > 0 || out.Failed > 0 {
		q.log.Info("webhook queue cleanup", "completed_removed", out.Completed, "failed_removed", out.Failed)
	}
	return out, nil
}

func (q *webhookQueue) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(q.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := q.Cleanup(ctx); err != nil && ctx.Err() == nil {
					q.log.Warn("webhook queue cleanup failed", "error", err)
				}
			}
		}
	}()
}

func (q *webhookQueue) StartSignals(ctx context.Context) error {
	if q.signal == nil {
		return nil
	}
	return q.signal.StartWakeForwarder(ctx, WebhookQueueName, q.wakeLocal)
}

func (q *webhookQueue) Wake() <-chan struct{} { return q.wake }

func (q *webhookQueue) wakeLocal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *webhookQueue) notify(ctx context.Context) {
	q.wakeLocal()
	if q.signal == nil {
		return
	}
	if err := q.signal.NotifyEnqueued(ctx, WebhookQueueName); err != nil {
		q.log.Warn("queue wake publish failed", "error", err)
	}
}
