package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CallMetrics tracks contract calls executed by the runtime.
type CallMetrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
	writes  *prometheus.CounterVec
}

var (
	callMetricsOnce sync.Once
	callRegistry    *CallMetrics
)

// NewCallMetrics builds the collectors and registers them with reg. A nil
// registerer leaves them unregistered, which tests use for isolation.
func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treekv",
			Subsystem: "runtime",
			Name:      "calls_total",
			Help:      "Total contract calls segmented by method and outcome status.",
		}, []string{"method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "treekv",
			Subsystem: "runtime",
			Name:      "call_duration_seconds",
			Help:      "Latency distribution for contract calls, including commit.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treekv",
			Subsystem: "runtime",
			Name:      "store_writes_total",
			Help:      "Records written or deleted by committed calls.",
		}, []string{"method"}),
	}
	if reg != nil {
		reg.MustRegister(m.calls, m.latency, m.writes)
	}
	return m
}

// Calls returns the lazily-initialised call metrics registered with the
// default Prometheus registry.
func Calls() *CallMetrics {
	callMetricsOnce.Do(func() {
		callRegistry = NewCallMetrics(prometheus.DefaultRegisterer)
	})
	return callRegistry
}

// Observe records one finished call. Status should be a stable string such as
// "ok" or "not_found" so dashboards and alerts remain consistent.
func (m *CallMetrics) Observe(method, status string, duration time.Duration, writes int) {
	if m == nil {
		return
	}
	method = strings.TrimSpace(method)
	if method == "" {
		method = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.calls.WithLabelValues(method, status).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
	if writes > 0 {
		m.writes.WithLabelValues(method).Add(float64(writes))
	}
}
