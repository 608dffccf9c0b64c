package fieldcrypt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks field encryption activity.
type Metrics struct {
	fieldsEncrypted prometheus.Counter
	decryptFailures *prometheus.CounterVec
	rotations       prometheus.Counter
	reencrypted     prometheus.Counter
	reencryptFailed prometheus.Counter
}

// NewMetrics creates and registers the fieldcrypt metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		fieldsEncrypted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_fields_encrypted_total",
			Help: "Total number of record fields encrypted at rest",
		}),
		decryptFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_field_decrypt_failures_total",
			Help: "Field decryption failures by reason (integrity, key_retired)",
		}, []string{"reason"}),
		rotations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_key_rotations_total",
			Help: "Total number of encryption key rotations",
		}),
		reencrypted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_fields_reencrypted_total",
			Help: "Fields migrated to the active key generation",
		}),
		reencryptFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_field_reencrypt_failures_total",
			Help: "Fields that failed migration during a rotation pass",
		}),
	}
}

func (m *Metrics) IncFieldsEncrypted() { m.fieldsEncrypted.Inc() }

func (m *Metrics) IncDecryptFailures(reason string) {
	m.decryptFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncRotations() { m.rotations.Inc() }

func (m *Metrics) AddReencrypted(migrated, failed int) {
	m.reencrypted.Add(float64(migrated))
	m.reencryptFailed.Add(float64(failed))
}
