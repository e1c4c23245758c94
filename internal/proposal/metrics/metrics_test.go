package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementTransition("draft", "submitted")
	m.IncrementTransition("draft", "submitted")
	m.IncrementDisclosure("confidential", "nda")
	m.IncrementConcurrentRejection()
	m.IncrementSweepApplied("expired")
	m.ObserveSweep(time.Now())
	m.ObserveOperation("submit", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("draft", "submitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Disclosures.WithLabelValues("confidential", "nda")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConcurrentRejections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepApplied.WithLabelValues("expired")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SweepDuration))
}
