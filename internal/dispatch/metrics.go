package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks delivery dispatch activity.
type Metrics struct {
	scheduled     *prometheus.CounterVec
	delivered     *prometheus.CounterVec
	failed        *prometheus.CounterVec
	exhausted     *prometheus.CounterVec
	trailFailures prometheus.Counter
}

// NewMetrics creates and registers the dispatch metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		scheduled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_deliveries_scheduled_total",
			Help: "Delivery attempts queued, by channel",
		}, []string{"channel"}),
		delivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_deliveries_delivered_total",
			Help: "Delivery attempts confirmed delivered, by channel",
		}, []string{"channel"}),
		failed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_deliveries_failed_total",
			Help: "Delivery attempts that failed, by channel",
		}, []string{"channel"}),
		exhausted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_deliveries_exhausted_total",
			Help: "Deliveries that ran out of retries, by channel",
		}, []string{"channel"}),
		trailFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_delivery_trail_failures_total",
			Help: "Delivery transitions whose ledger trail append failed after retries",
		}),
	}
}

func (m *Metrics) IncScheduled(channel string) { m.scheduled.WithLabelValues(channel).Inc() }
func (m *Metrics) IncDelivered(channel string) { m.delivered.WithLabelValues(channel).Inc() }
func (m *Metrics) IncFailed(channel string)    { m.failed.WithLabelValues(channel).Inc() }
func (m *Metrics) IncExhausted(channel string) { m.exhausted.WithLabelValues(channel).Inc() }
func (m *Metrics) IncTrailFailures()           { m.trailFailures.Inc() }
