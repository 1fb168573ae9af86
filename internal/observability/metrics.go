package observability

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/enrollment-backend/internal/platform/envutil"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	aggregateOps       *CounterVec
	aggregateLatency   *HistogramVec
	aggregateConflicts *CounterVec
	aggregateRetries   *CounterVec

	enrollments       *CounterVec
	preferences       *CounterVec
	preferenceLatency *HistogramVec

	webhooksReceived  *CounterVec
	webhookJobs       *CounterVec
	webhookJobLatency *HistogramVec

	queueJobs       *GaugeVec
	queueFailedRate *Gauge
	queueHealth     *Gauge

	pgStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Init returns the process metrics registry, or nil when METRICS_ENABLED is off.
// Every Metrics method is a no-op on a nil receiver.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func Current() *Metrics {
	return instance
}

func New() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("enroll_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"enroll_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("enroll_api_inflight_requests", "In-flight API requests."),

		aggregateOps:       NewCounterVec("enroll_aggregate_operations_total", "Aggregate write operations by operation/status.", []string{"op", "status"}),
		aggregateLatency:   NewHistogramVec("enroll_aggregate_operation_duration_seconds", "Aggregate write latency by operation.", []string{"op"}, nil),
		aggregateConflicts: NewCounterVec("enroll_aggregate_conflicts_total", "Aggregate writes that hit a uniqueness or CAS conflict.", []string{"op"}),
		aggregateRetries:   NewCounterVec("enroll_aggregate_retryable_total", "Aggregate writes that failed with a retryable error.", []string{"op"}),

		enrollments:       NewCounterVec("enroll_enrollments_total", "Enrollment creation attempts by kind/outcome.", []string{"kind", "outcome"}),
		preferences:       NewCounterVec("enroll_payment_preferences_total", "Payment preference requests by mode/status.", []string{"mode", "status"}),
		preferenceLatency: NewHistogramVec("enroll_payment_preference_duration_seconds", "Payment preference latency by mode.", []string{"mode"}, nil),

		webhooksReceived:  NewCounterVec("enroll_webhooks_received_total", "Webhook deliveries by disposition.", []string{"disposition"}),
		webhookJobs:       NewCounterVec("enroll_webhook_jobs_total", "Processed webhook jobs by job type/status.", []string{"job_type", "status"}),
		webhookJobLatency: NewHistogramVec("enroll_webhook_job_duration_seconds", "Webhook job processing latency by job type.", []string{"job_type"}, nil),

		queueJobs:       NewGaugeVec("enroll_webhook_queue_jobs", "Webhook queue jobs by status.", []string{"status"}),
		queueFailedRate: NewGauge("enroll_webhook_queue_failed_rate", "failed / (failed + completed) over retained jobs."),
		queueHealth:     NewGauge("enroll_webhook_queue_health", "Queue health: 0 healthy, 1 degraded, 2 critical."),

		pgStats:   NewGaugeVec("enroll_postgres_pool", "database/sql pool stats.", []string{"stat"}),
		redisUp:   NewGauge("enroll_redis_up", "1 when the last redis ping succeeded."),
		redisPing: NewGauge("enroll_redis_ping_seconds", "Latency of the last redis ping."),
	}
}

func scrapeInterval() time.Duration {
	return envutil.Duration("METRICS_SCRAPE_INTERVAL", 10*time.Second)
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.aggregateOps, m.aggregateLatency, m.aggregateConflicts, m.aggregateRetries,
		m.enrollments, m.preferences, m.preferenceLatency,
		m.webhooksReceived, m.webhookJobs, m.webhookJobLatency,
		m.queueJobs, m.queueFailedRate, m.queueHealth,
		m.pgStats, m.redisUp, m.redisPing,
	}
	for _, mw := range writers {
		if err := mw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func orUnknown(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method, route, status = orUnknown(method), orUnknown(route), orUnknown(status)
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAggregateOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	op = orUnknown(op)
	m.aggregateOps.Inc(op, orUnknown(status))
	m.aggregateLatency.Observe(dur.Seconds(), op)
}

func (m *Metrics) IncAggregateConflict(op string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.Inc(orUnknown(op))
}

func (m *Metrics) IncAggregateRetry(op string) {
	if m == nil {
		return
	}
	m.aggregateRetries.Inc(orUnknown(op))
}

func (m *Metrics) IncEnrollment(kind, outcome string) {
	if m == nil {
		return
	}
	m.enrollments.Inc(orUnknown(kind), orUnknown(outcome))
}

func (m *Metrics) ObservePreference(mode, status string, dur time.Duration) {
	if m == nil {
		return
	}
	mode = orUnknown(mode)
	m.preferences.Inc(mode, orUnknown(status))
	m.preferenceLatency.Observe(dur.Seconds(), mode)
}

func (m *Metrics) IncWebhookReceived(disposition string) {
	if m == nil {
		return
	}
	m.webhooksReceived.Inc(orUnknown(disposition))
}

func (m *Metrics) ObserveWebhookJob(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	jobType = orUnknown(jobType)
	m.webhookJobs.Inc(jobType, orUnknown(status))
	m.webhookJobLatency.Observe(dur.Seconds(), jobType)
}

// SetQueueHealth publishes one queue snapshot and its classification.
func (m *Metrics) SetQueueHealth(s QueueSnapshot, report HealthReport) {
	if m == nil {
		return
	}
	m.queueJobs.Set(float64(s.Waiting), "waiting")
	m.queueJobs.Set(float64(s.Active), "active")
	m.queueJobs.Set(float64(s.Delayed), "delayed")
	m.queueJobs.Set(float64(s.Completed), "completed")
	m.queueJobs.Set(float64(s.Failed), "failed")
	m.queueFailedRate.Set(s.FailedRate())
	m.queueHealth.Set(float64(report.Status.Level()))
}

// every runs fn on each tick until ctx ends.
func every(ctx context.Context, interval time.Duration, fn func()) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	every(ctx, scrapeInterval(), func() {
		sqlDB, err := db.DB()
		if err != nil {
			if log != nil {
				log.Warn("metrics: postgres stats unavailable", "error", err)
			}
			return
		}
		m.SetPoolStats(sqlDB.Stats())
	})
}

func (m *Metrics) SetPoolStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
	m.pgStats.Set(float64(stats.InUse), "in_use")
	m.pgStats.Set(float64(stats.Idle), "idle")
	m.pgStats.Set(float64(stats.WaitCount), "wait_count")
	m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
	m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
}

// StartRedisCollector pings the queue signal client; it does not own or
// close it.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	every(ctx, scrapeInterval(), func() {
		start := time.Now()
		if err := rdb.Ping(ctx).Err(); err != nil {
			m.redisUp.Set(0)
			if log != nil && ctx.Err() == nil {
				log.Warn("metrics: redis ping failed", "error", err)
			}
			return
		}
		m.redisUp.Set(1)
		m.redisPing.Set(time.Since(start).Seconds())
	})
}
