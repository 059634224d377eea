package store

import (
	"time"

	"github.com/charmbracelet/log"
)

// Metric names. Durations are recorded per operation; counters carry an
// "operation" label.
const (
	MetricUpsertDuration  = "upsert_duration"
	MetricQueryDuration   = "query_duration"
	MetricDeleteDuration  = "delete_duration"
	MetricOperationsTotal = "operations_total"
	MetricErrorsTotal     = "errors_total"
)

// MetricName prefixes a metric with the backend name, e.g. "sqlite_query_duration".
func MetricName(backend, metric string) string {
	return backend + "_" + metric
}

// Metrics receives operation latencies and counters from adapters.
type Metrics interface {
	RecordLatency(name string, d time.Duration, labels map[string]string)
	Increment(name string, labels map[string]string)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (NoopMetrics) Increment(string, map[string]string)                    {}

// LogMetrics writes metrics to the debug log.
type LogMetrics struct{}

func (LogMetrics) RecordLatency(name string, d time.Duration, labels map[string]string) {
	log.Debug("metric", "name", name, "duration", d, "labels", labels)
}

func (LogMetrics) Increment(name string, labels map[string]string) {
	log.Debug("metric", "name", name, "inc", 1, "labels", labels)
}

// Observe records the duration and outcome of one operation. It is meant to
// be deferred with the operation's named error result:
//
//	defer store.Observe(m, "sqlite", "query", time.Now(), &err)
func Observe(m Metrics, backend, op string, start time.Time, errp *error) {
	if m == nil {
		return
	}
	labels := map[string]string{"operation": op}
	m.RecordLatency(MetricName(backend, op+"_duration"), time.Since(start), labels)
	m.Increment(MetricName(backend, MetricOperationsTotal), labels)
	if errp != nil && *errp != nil {
		m.Increment(MetricName(backend, MetricErrorsTotal), labels)
	}
}
