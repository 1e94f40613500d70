package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveSweep(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSweep("sessions", 3, time.Millisecond, nil)
	m.ObserveSweep("sessions", 2, time.Millisecond, nil)
	m.ObserveSweep("sessions", 0, time.Millisecond, errors.New("boom"))

	assert.InDelta(t, 5, testutil.ToFloat64(m.SweepRemoved.WithLabelValues("sessions")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SweepFailures.WithLabelValues("sessions")), 0)
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CredentialEvent(EventRotated)
	m.ObserveCollect("advance", time.Second)
	m.CacheLookup("hit")

	assert.InDelta(t, 1, testutil.ToFloat64(m.CredentialEvents.WithLabelValues(EventRotated)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CollectOutcomes.WithLabelValues("advance")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")), 0)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSweep("x", 1, time.Second, nil)
		m.ObserveCollect("x", time.Second)
		m.CredentialEvent("x")
		m.CacheLookup("x")
	})
}
