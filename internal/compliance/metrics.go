package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks artifact lifecycle activity.
type Metrics struct {
	artifactsCreated  *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	breachesEscalated *prometheus.CounterVec
	disposals         *prometheus.CounterVec
}

// NewMetrics creates and registers the compliance metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		artifactsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_artifacts_created_total",
			Help: "Artifacts created, by type",
		}, []string{"type"}),
		transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_artifact_transitions_total",
			Help: "Workflow transitions applied, by type and target status",
		}, []string{"type", "status"}),
		breachesEscalated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_deadline_breaches_escalated_total",
			Help: "Deadline breaches that triggered escalation, by type",
		}, []string{"type"}),
		disposals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_artifact_disposals_total",
			Help: "Artifacts disposed under retention policy, by legal basis",
		}, []string{"basis"}),
	}
}

func (m *Metrics) IncArtifactsCreated(kind string) { m.artifactsCreated.WithLabelValues(kind).Inc() }

func (m *Metrics) IncTransitions(kind, status string) {
	m.transitions.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) IncBreachesEscalated(kind string) { m.breachesEscalated.WithLabelValues(kind).Inc() }
func (m *Metrics) IncDisposals(basis string)        { m.disposals.WithLabelValues(basis).Inc() }
