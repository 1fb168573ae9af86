package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	types "github.com/yungbote/enrollment-backend/internal/domain"
	"github.com/yungbote/enrollment-backend/internal/domain/jobs"
	"github.com/yungbote/enrollment-backend/internal/jobs/runtime"
	"github.com/yungbote/enrollment-backend/internal/observability"
	"github.com/yungbote/enrollment-backend/internal/platform/ctxutil"
	"github.com/yungbote/enrollment-backend/internal/platform/envutil"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

// Queue is what the worker pool needs from the webhook queue.
type Queue interface {
	runtime.Lifecycle
	Claim(ctx context.Context) (*types.WebhookJob, error)
	IsPaused(ctx context.Context) bool
	Wake() <-chan struct{}
}

type Config struct {
	Concurrency       int
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
}

// ConfigFromEnv reads WORKER_CONCURRENCY, WEBHOOK_QUEUE_POLL_INTERVAL and
// WEBHOOK_QUEUE_HEARTBEAT_INTERVAL.
func ConfigFromEnv() Config {
	return Config{
		Concurrency:       envutil.Int("WORKER_CONCURRENCY", 1),
		PollInterval:      envutil.Duration("WEBHOOK_QUEUE_POLL_INTERVAL", time.Second),
		HeartbeatInterval: envutil.Duration("WEBHOOK_QUEUE_HEARTBEAT_INTERVAL", 30*time.Second),
	}
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	return c
}

type Worker struct {
	log      *logger.Logger
	queue    Queue
	registry *runtime.Registry
	metrics  *observability.Metrics
	tracer   trace.Tracer
	cfg      Config
	wg       sync.WaitGroup
}

func NewWorker(baseLog *logger.Logger, queue Queue, registry *runtime.Registry, metrics *observability.Metrics, cfg Config) *Worker {
	return &Worker{
		log:      baseLog.With("component", "WebhookWorker"),
		queue:    queue,
		registry: registry,
		metrics:  metrics,
		tracer:   observability.Tracer("enrollment-backend/jobs/worker"),
		cfg:      cfg.withDefaults(),
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting webhook worker pool",
		"concurrency", w.cfg.Concurrency,
		"poll_interval", w.cfg.PollInterval.String(),
		"job_types", w.registry.Types(),
	)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
}

// Wait blocks until every loop started by Start has returned.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
		case <-w.queue.Wake():
		}
		w.drain(ctx, workerID)
	}
}

// drain runs jobs until the queue is empty, paused or ctx is done.
func (w *Worker) drain(ctx context.Context, workerID int) {
	for ctx.Err() == nil {
		ran, err := w.RunOnce(ctx, workerID)
		if err != nil {
			w.log.Warn("Claim failed", "worker_id", workerID, "error", err)
			return
		}
		if !ran {
			return
		}
	}
}

// RunOnce claims and processes at most one job. It reports whether a job
// was run; a paused queue claims nothing.
func (w *Worker) RunOnce(ctx context.Context, workerID int) (bool, error) {
	if w.queue.IsPaused(ctx) {
		return false, nil
	}
	job, err := w.queue.Claim(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.process(ctx, workerID, job)
	return true, nil
}

func (w *Worker) process(ctx context.Context, workerID int, job *types.WebhookJob) {
	start := time.Now()
	spanCtx, span := w.tracer.Start(ctx, "webhook.process", trace.WithAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("job.type", job.JobType),
		attribute.String("job.dedup_key", job.DedupKey),
		attribute.Int("job.attempt", job.Attempts),
	))
	defer span.End()

	jc := runtime.NewContext(spanCtx, job, w.queue)
	log := w.log.With(ctxutil.LogFields(jc.Ctx)...).With(
		"worker_id", workerID,
		"job_id", job.ID,
		"job_type", job.JobType,
		"attempt", job.Attempts,
	)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		log.Warn("No handler registered for job_type")
		jc.Fail("dispatch", jobs.Permanent(&missingHandlerError{JobType: job.JobType}))
		w.record(span, jc, job.JobType, start)
		return
	}

	stop := w.keepAlive(jc, log)
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Job handler panic", "panic", r)
				jc.Fail("panic", errFromRecover(r))
			}
		}()
		if runErr := h.Run(jc); runErr != nil {
			// Handlers normally finish the job themselves; this is the fallback.
			jc.Fail("run", runErr)
		}
	}()
	stop()

	if outcome, _ := jc.Outcome(); outcome == runtime.OutcomeNone {
		jc.Succeed("done", nil)
	}
	w.record(span, jc, job.JobType, start)
}

// keepAlive heartbeats the job lease until the returned stop func is called.
func (w *Worker) keepAlive(jc *runtime.Context, log *logger.Logger) func() {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(w.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-jc.Ctx.Done():
				return
			case <-ticker.C:
				if err := jc.Heartbeat(); err != nil {
					log.Warn("Heartbeat failed", "error", err)
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

func (w *Worker) record(span trace.Span, jc *runtime.Context, jobType string, start time.Time) {
	outcome, err := jc.Outcome()
	span.SetAttributes(attribute.String("job.outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	w.metrics.ObserveWebhookJob(jobType, string(outcome), time.Since(start))
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
