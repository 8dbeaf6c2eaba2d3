package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the registry.
type Metrics struct {
	SchemasCreated      prometheus.Counter
	AttestationsIssued  prometheus.Counter
	AttestationsRevoked prometheus.Counter
	Verifications       *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		SchemasCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestry_schemas_created_total",
			Help: "Total number of schemas registered",
		}),
		AttestationsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestry_attestations_issued_total",
			Help: "Total number of attestations issued",
		}),
		AttestationsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestry_attestations_revoked_total",
			Help: "Total number of attestations revoked (first transition only)",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestry_verifications_total",
			Help: "Total number of verify queries by outcome",
		}, []string{"outcome"}),
	}
}
