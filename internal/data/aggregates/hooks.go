package aggregates

import (
	"time"

	"github.com/yungbote/enrollment-backend/internal/observability"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

// Hooks receives one ObserveOperation per write plus conflict and retry
// counts keyed by operation name.
type Hooks interface {
	ObserveOperation(name, status string, dur time.Duration)
	IncConflict(name string)
	IncRetry(name string)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncConflict(string)                             {}
func (noopHooks) IncRetry(string)                                {}

type metricsHooks struct {
	metrics *observability.Metrics
}

func NewObservabilityHooks(metrics *observability.Metrics) Hooks {
	if metrics == nil {
		return noopHooks{}
	}
	return metricsHooks{metrics: metrics}
}

func (h metricsHooks) ObserveOperation(name, status string, dur time.Duration) {
	h.metrics.ObserveAggregateOperation(name, status, dur)
}
func (h metricsHooks) IncConflict(name string) { h.metrics.IncAggregateConflict(name) }
func (h metricsHooks) IncRetry(name string)    { h.metrics.IncAggregateRetry(name) }

// NewLogHooks logs lost races and transient failures. Successful writes
// are not logged.
func NewLogHooks(baseLog *logger.Logger) Hooks {
	if baseLog == nil {
		return noopHooks{}
	}
	return logHooks{log: baseLog.With("component", "AggregateHooks")}
}

type logHooks struct {
	log *logger.Logger
}

func (logHooks) ObserveOperation(string, string, time.Duration) {}
func (h logHooks) IncConflict(name string)                      { h.log.Warn("aggregate write conflict", "op", name) }
func (h logHooks) IncRetry(name string)                         { h.log.Warn("aggregate write retryable failure", "op", name) }

// MultiHooks fans every event out to each non-nil hook in order.
func MultiHooks(hooks ...Hooks) Hooks {
	out := make(multiHooks, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

type multiHooks []Hooks

func (m multiHooks) ObserveOperation(name, status string, dur time.Duration) {
	for _, h := range m {
		h.ObserveOperation(name, status, dur)
	}
}

func (m multiHooks) IncConflict(name string) {
	for _, h := range m {
		h.IncConflict(name)
	}
}

func (m multiHooks) IncRetry(name string) {
	for _, h := range m {
		h.IncRetry(name)
	}
}
