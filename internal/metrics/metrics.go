// Package metrics exposes Prometheus counters for the engine's
// operation surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counter vecs. A nil *Metrics is a valid no-op
// sink, so wiring it is optional.
type Metrics struct {
	ops  *prometheus.CounterVec
	rows *prometheus.CounterVec
}

// New registers the counters with reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitalstore_operations_total",
				Help: "Completed engine operations by kind and outcome",
			},
			[]string{"operation", "outcome"},
		),
		rows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitalstore_rows_total",
				Help: "Record rows touched by operation kind",
			},
			[]string{"operation"},
		),
	}
}

// Operation records one completed operation. outcome is "ok" or
// "error".
func (m *Metrics) Operation(operation, outcome string) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(operation, outcome).Inc()
}

// Rows records n record rows touched by an operation.
func (m *Metrics) Rows(operation string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.rows.WithLabelValues(operation).Add(float64(n))
}

// Handler returns the Prometheus scrape handler for the default
// registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns the scrape handler for a dedicated registry.
func HandlerFor(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
