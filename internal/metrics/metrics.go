// Package metrics exposes Prometheus instrumentation for the matching engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation labels.
const (
	OpParseName      = "parse_name"
	OpScoreCandidate = "score_candidates"
	OpClassify       = "classify"
	OpClassifyBatch  = "classify_batch"
)

// Metrics provides observability for parsing, scoring and classification.
type Metrics struct {
	// Operation latencies by operation
	OperationLatency *prometheus.HistogramVec

	// Operation outcomes by operation and outcome ("ok", "error")
	OperationOutcome *prometheus.CounterVec

	// Candidates scored
	CandidatesScored prometheus.Counter

	// Primary persona assignments by persona
	PrimaryPersona *prometheus.CounterVec

	// Weight table reloads and the active version
	WeightsReloads prometheus.Counter
	WeightsVersion *prometheus.GaugeVec
}

// New registers the engine metrics with the default registry. Call it once
// per process.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the engine metrics with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "juror_match_operation_duration_seconds",
			Help:    "Duration of engine operations",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"operation"}),

		OperationOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "juror_match_operations_total",
			Help: "Total engine operations by outcome",
		}, []string{"operation", "outcome"}),

		CandidatesScored: f.NewCounter(prometheus.CounterOpts{
			Name: "juror_match_candidates_scored_total",
			Help: "Total identity candidates scored",
		}),

		PrimaryPersona: f.NewCounterVec(prometheus.CounterOpts{
			Name: "juror_match_primary_persona_total",
			Help: "Total primary persona assignments by persona",
		}, []string{"persona"}),

		WeightsReloads: f.NewCounter(prometheus.CounterOpts{
			Name: "juror_match_weights_reloads_total",
			Help: "Total weight table swaps",
		}),

		WeightsVersion: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "juror_match_weights_info",
			Help: "Active weight table; value is always 1",
		}, []string{"id", "version"}),
	}
}

// ObserveOperation records the duration and outcome of an operation.
func (m *Metrics) ObserveOperation(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.OperationLatency.WithLabelValues(op).Observe(d.Seconds())
	m.OperationOutcome.WithLabelValues(op, outcome).Inc()
}

// AddCandidatesScored counts scored candidates.
func (m *Metrics) AddCandidatesScored(n int) {
	if m != nil {
		m.CandidatesScored.Add(float64(n))
	}
}

// IncrementPrimaryPersona records a primary persona assignment.
func (m *Metrics) IncrementPrimaryPersona(personaID string) {
	if m != nil {
		m.PrimaryPersona.WithLabelValues(personaID).Inc()
	}
}

// SetWeights records a weight table swap.
func (m *Metrics) SetWeights(id, version string) {
	if m == nil {
		return
	}
	m.WeightsReloads.Inc()
	m.WeightsVersion.Reset()
	m.WeightsVersion.WithLabelValues(id, version).Set(1)
}
