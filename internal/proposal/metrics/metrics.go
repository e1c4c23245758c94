package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the proposal lifecycle.
type Metrics struct {
	Transitions          *prometheus.CounterVec
	Disclosures          *prometheus.CounterVec
	ConcurrentRejections prometheus.Counter
	SweepApplied         *prometheus.CounterVec
	SweepFailures        prometheus.Counter
	SweepDuration        prometheus.Histogram
	OperationDuration    *prometheus.HistogramVec
}

// New registers the proposal metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dealroom_proposal_transitions_total",
			Help: "Committed proposal status transitions",
		}, []string{"from", "to"}),
		Disclosures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dealroom_disclosure_decisions_total",
			Help: "Visibility decisions by level and basis",
		}, []string{"level", "basis"}),
		ConcurrentRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "dealroom_concurrent_modification_total",
			Help: "Writes rejected for a stale version",
		}),
		SweepApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dealroom_sweep_transitions_total",
			Help: "Timeout transitions applied by the sweep",
		}, []string{"to"}),
		SweepFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "dealroom_sweep_failures_total",
			Help: "Proposals the sweep failed to transition",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dealroom_sweep_duration_seconds",
			Help:    "Duration of one timeout sweep",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dealroom_proposal_operation_duration_seconds",
			Help:    "Duration of proposal service operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncrementDisclosure(level, basis string) {
	m.Disclosures.WithLabelValues(level, basis).Inc()
}

func (m *Metrics) IncrementConcurrentRejection() {
	m.ConcurrentRejections.Inc()
}

func (m *Metrics) IncrementSweepApplied(to string) {
	m.SweepApplied.WithLabelValues(to).Inc()
}

func (m *Metrics) IncrementSweepFailure() {
	m.SweepFailures.Inc()
}

// ObserveSweep records a sweep that started at start.
func (m *Metrics) ObserveSweep(start time.Time) {
	m.SweepDuration.Observe(time.Since(start).Seconds())
}

// ObserveOperation records the duration of op. Call with time.Now() at the start.
func (m *Metrics) ObserveOperation(op string, start time.Time) {
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
