package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process-level Prometheus metrics: HTTP traffic and the
// background workers that move data out of the process.
type Metrics struct {
	RequestDuration      *prometheus.HistogramVec
	AuditRelayed         prometheus.Counter
	AuditRelayFailures   prometheus.Counter
	NotificationFailures *prometheus.CounterVec
}

// New registers the metrics on reg. Pass prometheus.DefaultRegisterer in main
// and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dealroom_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route pattern and status",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status"}),
		AuditRelayed: f.NewCounter(prometheus.CounterOpts{
			Name: "dealroom_audit_entries_relayed_total",
			Help: "Audit entries published to Kafka",
		}),
		AuditRelayFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "dealroom_audit_relay_failures_total",
			Help: "Failed audit relay batches",
		}),
		NotificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dealroom_notification_failures_total",
			Help: "Notifications that could not be delivered, by sink",
		}, []string{"sink"}),
	}
}

func (m *Metrics) ObserveRequest(method, route, status string, start time.Time) {
	m.RequestDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddAuditRelayed(n int) {
	m.AuditRelayed.Add(float64(n))
}

func (m *Metrics) IncrementAuditRelayFailures() {
	m.AuditRelayFailures.Inc()
}

func (m *Metrics) IncrementNotificationFailures(sink string) {
	m.NotificationFailures.WithLabelValues(sink).Inc()
}
