// Package metrics defines the Prometheus collectors exported by the planner.
//
// A nil *Metrics is valid and records nothing, so components can take one
// as an optional dependency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "trip_planner"

// Credential event labels.
const (
	EventIssued   = "issued"
	EventRotated  = "rotated"
	EventRevoked  = "revoked"
	EventReuse    = "refresh_reuse"
	EventRejected = "rejected"
)

// Metrics holds all collectors.
type Metrics struct {
	SweepRemoved     *prometheus.CounterVec
	SweepFailures    *prometheus.CounterVec
	SweepDuration    *prometheus.HistogramVec
	CollectOutcomes  *prometheus.CounterVec
	CollectDuration  prometheus.Histogram
	CredentialEvents *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SweepRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_removed_total",
			Help:      "Expired records removed by the sweeper.",
		}, []string{"target"}),
		SweepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Sweep passes that failed.",
		}, []string{"target"}),
		SweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of a single sweep per target.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),
		CollectOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collect_steps_total",
			Help:      "Collection loop steps by outcome.",
		}, []string{"outcome"}),
		CollectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collect_extraction_seconds",
			Help:      "Latency of the extraction call.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		CredentialEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_events_total",
			Help:      "Credential lifecycle events.",
		}, []string{"event"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_cache_lookups_total",
			Help:      "Search cache lookups by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.SweepRemoved,
		m.SweepFailures,
		m.SweepDuration,
		m.CollectOutcomes,
		m.CollectDuration,
		m.CredentialEvents,
		m.CacheLookups,
	)
	return m
}

// ObserveSweep records the result of sweeping one target.
func (m *Metrics) ObserveSweep(target string, removed int64, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.SweepDuration.WithLabelValues(target).Observe(elapsed.Seconds())
	if err != nil {
		m.SweepFailures.WithLabelValues(target).Inc()
		return
	}
	m.SweepRemoved.WithLabelValues(target).Add(float64(removed))
}

// ObserveCollect records a collection loop step.
func (m *Metrics) ObserveCollect(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CollectOutcomes.WithLabelValues(outcome).Inc()
	m.CollectDuration.Observe(elapsed.Seconds())
}

// CredentialEvent counts a credential lifecycle event.
func (m *Metrics) CredentialEvent(event string) {
	if m == nil {
		return
	}
	m.CredentialEvents.WithLabelValues(event).Inc()
}

// CacheLookup counts a search cache hit, miss or error.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
