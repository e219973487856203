// Package metrics provides Prometheus collectors for index coordination.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "searchkit"

// Outcome labels.
const (
	OutcomeOK     = "ok"
	OutcomeError  = "error"
	OutcomeCached = "cached"
)

// Metrics holds the searchkit collectors.
type Metrics struct {
	WriterAcquires    *prometheus.CounterVec
	WriterWaitSeconds prometheus.Histogram
	LockRaces         prometheus.Counter
	LockForceClears   prometheus.Counter
	OpenWriters       prometheus.Gauge

	SearcherReopens *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec

	SweepRecords *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer
// for the process-wide registry or a fresh prometheus.NewRegistry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WriterAcquires: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_acquires_total",
			Help:      "Writer acquisitions by outcome",
		}, []string{"outcome"}),
		WriterWaitSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "writer_wait_seconds",
			Help:      "Time spent waiting for a held writer lock",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		}),
		LockRaces: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_races_total",
			Help:      "Writer opens that lost a lock race",
		}),
		LockForceClears: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_force_clears_total",
			Help:      "Stale writer locks forcibly cleared",
		}),
		OpenWriters: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_writers",
			Help:      "Writer handles currently open",
		}),
		SearcherReopens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searcher_reopens_total",
			Help:      "Read handle refreshes by trigger",
		}, []string{"trigger"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Query execution time",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		SweepRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_records_total",
			Help:      "Records processed by reindex sweeps",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveAcquire(outcome string) {
	if m == nil {
		return
	}
	m.WriterAcquires.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveWait(d time.Duration) {
	if m == nil {
		return
	}
	m.WriterWaitSeconds.Observe(d.Seconds())
}

func (m *Metrics) IncLockRace() {
	if m == nil {
		return
	}
	m.LockRaces.Inc()
}

func (m *Metrics) IncForceClear() {
	if m == nil {
		return
	}
	m.LockForceClears.Inc()
}

func (m *Metrics) WriterOpened() {
	if m == nil {
		return
	}
	m.OpenWriters.Inc()
}

func (m *Metrics) WriterClosed() {
	if m == nil {
		return
	}
	m.OpenWriters.Dec()
}

// ObserveReopen counts a read handle refresh. trigger is "timer", "forced"
// or "idle".
func (m *Metrics) ObserveReopen(trigger string) {
	if m == nil {
		return
	}
	m.SearcherReopens.WithLabelValues(trigger).Inc()
}

func (m *Metrics) ObserveQuery(start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.QueryDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// ObserveSweep adds n records with the given outcome ("indexed", "skipped",
// "failed").
func (m *Metrics) ObserveSweep(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.SweepRecords.WithLabelValues(outcome).Add(float64(n))
}
