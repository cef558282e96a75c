/*
metrics.go - Prometheus instrumentation for the dues engine

PURPOSE:
  Counters for the two business-critical write paths: accrual runs and
  payment recording. Exposed on GET /metrics via promhttp.

METRICS:
  dues_accrual_runs_total{status}  Confirmed accrual attempts by outcome
  dues_created_total               Unit dues generated by confirmed runs
  dues_payments_recorded_total     Successfully recorded payments

REGISTRY:
  Each Metrics value owns its registry instead of the global default, so
  tests can build handlers freely without duplicate-registration panics.

SEE ALSO:
  - handlers.go: Increments these counters
  - server.go: Mounts the /metrics endpoint
*/
package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	Registry *prometheus.Registry

	AccrualRuns      *prometheus.CounterVec
	DuesCreated      prometheus.Counter
	PaymentsRecorded prometheus.Counter
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		AccrualRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dues_accrual_runs_total",
			Help: "Confirmed accrual attempts by outcome.",
		}, []string{"status"}),
		DuesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "dues_created_total",
			Help: "Unit dues generated by confirmed accrual runs.",
		}),
		PaymentsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "dues_payments_recorded_total",
			Help: "Successfully recorded payments.",
		}),
	}
}
