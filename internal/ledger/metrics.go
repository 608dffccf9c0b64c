package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks ledger activity.
type Metrics struct {
	appends        *prometheus.CounterVec
	appendFailures prometheus.Counter
	chainBreaks    prometheus.Counter
	publishErrors  prometheus.Counter
}

// NewMetrics creates and registers the ledger metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		appends: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_entries_appended_total",
			Help: "Ledger entries appended, by action",
		}, []string{"action"}),
		appendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_append_failures_total",
			Help: "Ledger appends that failed at the store",
		}),
		chainBreaks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_chain_breaks_detected_total",
			Help: "Broken links detected by chain verification",
		}),
		publishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_publish_errors_total",
			Help: "Failures publishing appended entries to the event stream",
		}),
	}
}

func (m *Metrics) IncAppends(action string) { m.appends.WithLabelValues(action).Inc() }
func (m *Metrics) IncAppendFailures()       { m.appendFailures.Inc() }
func (m *Metrics) IncChainBreaks()          { m.chainBreaks.Inc() }
func (m *Metrics) IncPublishErrors()        { m.publishErrors.Inc() }
