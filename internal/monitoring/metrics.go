package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the ledger pipeline's operational metrics.
type Metrics struct {
	periodCloseDuration *prometheus.HistogramVec
	periodCloseFailures *prometheus.CounterVec
	navComputed         prometheus.Counter
	fillsReconciled     prometheus.Counter
	rateLookupFailures  prometheus.Counter
}

// NewMetrics creates the metrics under the given namespace and
// registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		periodCloseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "period_close_duration_seconds",
				Help:      "Duration of one fund's period close, holdings through NAV",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"period"},
		),
		periodCloseFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "period_close_failures_total",
				Help:      "Failed fund period-close units, by error class",
			},
			[]string{"reason"},
		),
		navComputed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nav_computed_total",
				Help:      "NAV records computed and persisted",
			},
		),
		fillsReconciled: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fills_reconciled_total",
				Help:      "Exchange fills reconciled into order fundings",
			},
		),
		rateLookupFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_lookup_failures_total",
				Help:      "Rate resolutions that found no entry at or before the requested time",
			},
		),
	}
}

// ObservePeriodClose records the duration of one fund's close unit.
func (m *Metrics) ObservePeriodClose(period string, d time.Duration) {
	m.periodCloseDuration.WithLabelValues(period).Observe(d.Seconds())
}

// PeriodCloseFailed counts a failed close unit by reason.
func (m *Metrics) PeriodCloseFailed(reason string) {
	m.periodCloseFailures.WithLabelValues(reason).Inc()
}

// NavComputed counts a persisted NAV record.
func (m *Metrics) NavComputed() { m.navComputed.Inc() }

// FillReconciled counts a reconciled exchange fill.
func (m *Metrics) FillReconciled() { m.fillsReconciled.Inc() }

// RateLookupFailed counts a hard rate-resolution miss.
func (m *Metrics) RateLookupFailed() { m.rateLookupFailures.Inc() }
