package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Registry owns these metrics and backs the /metrics endpoint.
	Registry *prometheus.Registry

	decisions        *prometheus.CounterVec
	degraded         prometheus.Counter
	payments         *prometheus.CounterVec
	overdueMarked    prometheus.Counter
	lateFeesCents    prometheus.Counter
	sweepDuration    prometheus.Histogram
	externalErrors   *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	requestDurations *prometheus.HistogramVec
}

// NewMetrics creates a dedicated registry so constructing Metrics more than
// once (tests, two binaries in one process) never collides.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bnpl_decisions_total",
				Help: "Credit decisions by outcome and risk level.",
			},
			[]string{"outcome", "risk_level"},
		),
		degraded: factory.NewCounter(prometheus.CounterOpts{
			Name: "bnpl_degraded_decisions_total",
			Help: "Decisions made with the fallback risk tier because the score provider was unavailable.",
		}),
		payments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bnpl_payments_total",
				Help: "Installment payments by result.",
			},
			[]string{"result"},
		),
		overdueMarked: factory.NewCounter(prometheus.CounterOpts{
			Name: "bnpl_installments_overdue_total",
			Help: "Installments transitioned to OVERDUE by the sweeper.",
		}),
		lateFeesCents: factory.NewCounter(prometheus.CounterOpts{
			Name: "bnpl_late_fees_cents_total",
			Help: "Late fees assessed, in minor units.",
		}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bnpl_sweep_duration_seconds",
			Help:    "Duration of overdue sweeps.",
			Buckets: prometheus.DefBuckets,
		}),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bnpl_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bnpl_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bnpl_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		requestDurations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bnpl_operation_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// Handler serves the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// RecordDecision counts an approve/deny outcome.
func (m *Metrics) RecordDecision(approved bool, riskLevel string) {
	outcome := "denied"
	if approved {
		outcome = "approved"
	}
	m.decisions.WithLabelValues(outcome, riskLevel).Inc()
}

// IncrDegradedDecision counts a decision made on the fallback tier.
func (m *Metrics) IncrDegradedDecision() {
	m.degraded.Inc()
}

// RecordPayment counts a payment attempt by result ("paid", "rejected", "error").
func (m *Metrics) RecordPayment(result string) {
	m.payments.WithLabelValues(result).Inc()
}

// RecordOverdue counts one installment marked overdue and its fee.
func (m *Metrics) RecordOverdue(lateFeeCents int64) {
	m.overdueMarked.Inc()
	m.lateFeesCents.Add(float64(lateFeeCents))
}

// RecordSweepDuration observes one sweep run.
func (m *Metrics) RecordSweepDuration(d time.Duration) {
	m.sweepDuration.Observe(d.Seconds())
}

// RecordOperationDuration records the duration of a service operation.
func (m *Metrics) RecordOperationDuration(operation string, d time.Duration) {
	m.requestDurations.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}
