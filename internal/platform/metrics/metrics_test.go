package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersAccumulate(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.AddAuditRelayed(3)
	m.AddAuditRelayed(2)
	m.IncrementNotificationFailures("kafka")
	m.ObserveRequest("GET", "/proposals/{id}", "200", time.Now())

	assert.InDelta(t, 5, testutil.ToFloat64(m.AuditRelayed), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.NotificationFailures.WithLabelValues("kafka")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))
}

func TestNewOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
