package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mailsentry/mail-sentry/internal/core"
)

// Metrics exposes batch processing counters
type Metrics struct {
	batchesTotal  prometheus.Counter
	recordsTotal  *prometheus.CounterVec
	casesTotal    prometheus.Counter
	batchDuration prometheus.Histogram
}

// New registers the pipeline metrics on the given registerer. Pass
// prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		batchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_sentry_batches_total",
			Help: "Number of processed batches",
		}),
		recordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mail_sentry_records_total",
			Help: "Number of processed records by outcome",
		}, []string{"outcome"}),
		casesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_sentry_cases_total",
			Help: "Number of generated cases",
		}),
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mail_sentry_batch_duration_seconds",
			Help:    "Batch processing duration",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

// ObserveBatch records one batch summary
func (m *Metrics) ObserveBatch(summary *core.BatchSummary, seconds float64) {
	m.batchesTotal.Inc()
	m.batchDuration.Observe(seconds)
	m.recordsTotal.WithLabelValues("scored").Add(float64(summary.Scored))
	m.recordsTotal.WithLabelValues("excluded").Add(float64(summary.Excluded))
	m.recordsTotal.WithLabelValues("whitelisted").Add(float64(summary.Whitelisted))
	m.recordsTotal.WithLabelValues("flagged").Add(float64(summary.Flagged))
	m.recordsTotal.WithLabelValues("errored").Add(float64(summary.Errored))
	m.casesTotal.Add(float64(summary.Cased))
}
