package metrics

import (
	"errors"
	"time"

	"github.com/claude/liftlog/internal/workout"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus collectors for the session service and the
// HTTP layer. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SessionOps      *prometheus.CounterVec
	RequestCount    *prometheus.CounterVec
	RequestDuration prometheus.Histogram
}

// NewRegistry returns a registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liftlog",
			Name:      "session_operations_total",
			Help:      "Session repository operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		RequestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liftlog",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status.",
		}, []string{"method", "status"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "liftlog",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.SessionOps, m.RequestCount, m.RequestDuration)
	return m
}

// ObserveOp counts one session operation, classifying err into an outcome.
func (m *Metrics) ObserveOp(op string, err error) {
	if m == nil {
		return
	}
	m.SessionOps.WithLabelValues(op, Outcome(err)).Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestCount.WithLabelValues(method, status).Inc()
	m.RequestDuration.Observe(d.Seconds())
}

// Outcome maps an error to a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, workout.ErrValidation):
		return "invalid"
	case errors.Is(err, workout.ErrNotFound):
		return "not_found"
	case errors.Is(err, workout.ErrConflict):
		return "conflict"
	case errors.Is(err, workout.ErrStaleEdit):
		return "stale"
	default:
		return "error"
	}
}
