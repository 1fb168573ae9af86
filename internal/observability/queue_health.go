package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/enrollment-backend/internal/platform/envutil"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

// QueueSnapshot is a point-in-time count of webhook jobs per status.
type QueueSnapshot struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// Backlog counts jobs that still have to run.
func (s QueueSnapshot) Backlog() int64 { return s.Waiting + s.Delayed }

// FailedRate is failed/(failed+completed), 0 when nothing finished yet.
func (s QueueSnapshot) FailedRate() float64 {
	den := s.Failed + s.Completed
	if den <= 0 {
		return 0
	}
	return float64(s.Failed) / float64(den)
}

type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthCritical HealthStatus = "critical"
)

// Level orders statuses for comparison and for the health gauge.
func (h HealthStatus) Level() int {
	switch h {
	case HealthCritical:
		return 2
	case HealthDegraded:
		return 1
	default:
		return 0
	}
}

func worse(a, b HealthStatus) HealthStatus {
	if b.Level() > a.Level() {
		return b
	}
	return a
}

// HealthThresholds are exclusive lower bounds: a value equal to a threshold
// stays in the healthier band.
type HealthThresholds struct {
	BacklogDegraded     int64
	BacklogCritical     int64
	FailureRateDegraded float64
	FailureRateCritical float64
}

func DefaultHealthThresholds() HealthThresholds {
	return HealthThresholds{
		BacklogDegraded:     100,
		BacklogCritical:     1000,
		FailureRateDegraded: 0.10,
		FailureRateCritical: 0.25,
	}
}

// HealthThresholdsFromEnv reads QUEUE_HEALTH_* overrides on top of the defaults.
func HealthThresholdsFromEnv() HealthThresholds {
	d := DefaultHealthThresholds()
	return HealthThresholds{
		BacklogDegraded:     int64(envutil.Int("QUEUE_HEALTH_BACKLOG_DEGRADED", int(d.BacklogDegraded))),
		BacklogCritical:     int64(envutil.Int("QUEUE_HEALTH_BACKLOG_CRITICAL", int(d.BacklogCritical))),
		FailureRateDegraded: envutil.Float("QUEUE_HEALTH_FAILURE_RATE_DEGRADED", d.FailureRateDegraded),
		FailureRateCritical: envutil.Float("QUEUE_HEALTH_FAILURE_RATE_CRITICAL", d.FailureRateCritical),
	}
}

func (t HealthThresholds) Validate() error {
	if t.BacklogDegraded < 0 || t.BacklogCritical < t.BacklogDegraded {
		return fmt.Errorf("backlog thresholds: want 0 <= degraded <= critical, got %d/%d", t.BacklogDegraded, t.BacklogCritical)
	}
	if t.FailureRateDegraded < 0 || t.FailureRateCritical > 1 || t.FailureRateCritical < t.FailureRateDegraded {
		return fmt.Errorf("failure rate thresholds: want 0 <= degraded <= critical <= 1, got %.2f/%.2f", t.FailureRateDegraded, t.FailureRateCritical)
	}
	return nil
}

type HealthReport struct {
	Status      HealthStatus  `json:"status"`
	Reasons     []string      `json:"reasons"`
	Snapshot    QueueSnapshot `json:"snapshot"`
	FailedRate  float64       `json:"failed_rate"`
	Backlog     int64         `json:"backlog"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
}

// Classify evaluates backlog and failure rate independently and reports the
// worse of the two.
func (t HealthThresholds) Classify(s QueueSnapshot) HealthReport {
	backlog := s.Backlog()
	rate := s.FailedRate()
	report := HealthReport{
		Status:      HealthHealthy,
		Reasons:     []string{},
		Snapshot:    s,
		FailedRate:  rate,
		Backlog:     backlog,
		EvaluatedAt: time.Now().UTC(),
	}

	switch {
	case backlog > t.BacklogCritical:
		report.Status = worse(report.Status, HealthCritical)
		report.Reasons = append(report.Reasons, fmt.Sprintf("backlog %d > %d", backlog, t.BacklogCritical))
	case backlog > t.BacklogDegraded:
		report.Status = worse(report.Status, HealthDegraded)
		report.Reasons = append(report.Reasons, fmt.Sprintf("backlog %d > %d", backlog, t.BacklogDegraded))
	}

	switch {
	case rate > t.FailureRateCritical:
		report.Status = worse(report.Status, HealthCritical)
		report.Reasons = append(report.Reasons, fmt.Sprintf("failure rate %.3f > %.3f", rate, t.FailureRateCritical))
	case rate > t.FailureRateDegraded:
		report.Status = worse(report.Status, HealthDegraded)
		report.Reasons = append(report.Reasons, fmt.Sprintf("failure rate %.3f > %.3f", rate, t.FailureRateDegraded))
	}

	return report
}

// QueueStatsSource is satisfied by the webhook queue service.
type QueueStatsSource interface {
	GetStats(ctx context.Context) (QueueSnapshot, error)
}

// QueueHealthCollector classifies the queue on demand and on an interval,
// publishing the latest report to metrics.
type QueueHealthCollector struct {
	log        *logger.Logger
	source     QueueStatsSource
	thresholds HealthThresholds
	metrics    *Metrics
	interval   time.Duration
}

func NewQueueHealthCollector(baseLog *logger.Logger, source QueueStatsSource, thresholds HealthThresholds, metrics *Metrics) *QueueHealthCollector {
	return &QueueHealthCollector{
		log:        baseLog.With("service", "QueueHealthCollector"),
		source:     source,
		thresholds: thresholds,
		metrics:    metrics,
		interval:   envutil.Duration("QUEUE_HEALTH_INTERVAL", 15*time.Second),
	}
}

func (c *QueueHealthCollector) Thresholds() HealthThresholds { return c.thresholds }

// Evaluate reads stats once, classifies them and updates the gauges.
func (c *QueueHealthCollector) Evaluate(ctx context.Context) (HealthReport, error) {
	snap, err := c.source.GetStats(ctx)
	if err != nil {
		return HealthReport{}, err
	}
	report := c.thresholds.Classify(snap)
	c.metrics.SetQueueHealth(snap, report)
	return report, nil
}

func (c *QueueHealthCollector) Start(ctx context.Context) {
	if c == nil || c.interval <= 0 {
		return
	}
	var last HealthStatus
	every(ctx, c.interval, func() {
		report, err := c.Evaluate(ctx)
		if err != nil {
			c.log.Warn("queue health evaluation failed", "error", err)
			return
		}
		if report.Status == last {
			return
		}
		if report.Status == HealthHealthy {
			c.log.Info("queue health changed", "status", report.Status)
		} else {
			c.log.Warn("queue health changed", "status", report.Status, "reasons", report.Reasons)
		}
		last = report.Status
	})
}
