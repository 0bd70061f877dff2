// Package prometheus provides Prometheus implementations of the metrics
// interfaces declared by the tracker, cache and block store packages.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittocache/pkg/metrics"
	"github.com/marmos91/dittocache/pkg/tracker"
)

// trackerMetrics is the Prometheus implementation of tracker.Metrics.
type trackerMetrics struct {
	admissions        *prometheus.CounterVec
	admissionBytes    *prometheus.HistogramVec
	ledgerSize        prometheus.Gauge
	ledgerMax         prometheus.Gauge
	sweeps            *prometheus.CounterVec
	sweepDuration     *prometheus.HistogramVec
	sweepFreed        *prometheus.CounterVec
	sweepEvictions    *prometheus.CounterVec
	storesSkipped     *prometheus.CounterVec
	accountingDefects prometheus.Counter
	deficitBytes      prometheus.Counter
	stores            prometheus.Gauge
}

// NewTrackerMetrics creates a Prometheus-backed tracker.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewTrackerMetrics() tracker.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return newTrackerMetrics(metrics.GetRegistry())
}

func newTrackerMetrics(reg prometheus.Registerer) *trackerMetrics {
	return &trackerMetrics{
		admissions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocache_tracker_admissions_total",
				Help: "Admission decisions by result",
			},
			[]string{"result"}, // "accepted", "refused"
		),
		admissionBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittocache_tracker_admission_bytes",
				Help:    "Distribution of block sizes asking for admission",
				Buckets: prometheus.ExponentialBuckets(4096, 4, 7), // 4KiB .. 16MiB
			},
			[]string{"result"},
		),
		ledgerSize: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittocache_tracker_size_bytes",
				Help: "Bytes currently accounted as buffered",
			},
		),
		ledgerMax: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittocache_tracker_max_size_bytes",
				Help: "Configured buffer capacity",
			},
		),
		sweeps: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocache_tracker_sweeps_total",
				Help: "Completed sweeps by kind",
			},
			[]string{"kind"}, // "routine", "urgent"
		),
		sweepDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittocache_tracker_sweep_duration_milliseconds",
				Help: "Duration of sweeps in milliseconds",
				Buckets: []float64{
					1,     // 1ms - nothing to flush
					10,    // 10ms
					50,    // 50ms
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s
					5000,  // 5s - large flushes to S3
					30000, // 30s
				},
			},
			[]string{"kind"},
		),
		sweepFreed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocache_tracker_flushed_bytes_total",
				Help: "Bytes freed by sweeps",
			},
			[]string{"kind"},
		),
		sweepEvictions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocache_tracker_evictions_total",
				Help: "Blocks evicted by sweeps",
			},
			[]string{"kind"},
		),
		storesSkipped: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocache_tracker_stores_skipped_total",
				Help: "Stores dropped from a sweep by reason",
			},
			[]string{"reason"}, // "error", "no_progress"
		),
		accountingDefects: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittocache_tracker_accounting_defects_total",
				Help: "Times the ledger went negative and was clamped to zero",
			},
		),
		deficitBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittocache_tracker_accounting_deficit_bytes_total",
				Help: "Bytes discarded when clamping a negative ledger",
			},
		),
		stores: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittocache_tracker_stores",
				Help: "Registered stores",
			},
		),
	}
}

func result(accepted bool) string {
	if accepted {
		return "accepted"
	}
	return "refused"
}

func (m *trackerMetrics) ObserveAdmission(accepted bool, blockSize int64) {
	r := result(accepted)
	m.admissions.WithLabelValues(r).Inc()
	if blockSize > 0 {
		m.admissionBytes.WithLabelValues(r).Observe(float64(blockSize))
	}
}

func (m *trackerMetrics) RecordSize(size, maxSize int64) {
	m.ledgerSize.Set(float64(size))
	m.ledgerMax.Set(float64(maxSize))
}

func (m *trackerMetrics) ObserveSweep(kind string, freed int64, evictions int, duration time.Duration) {
	m.sweeps.WithLabelValues(kind).Inc()
	m.sweepDuration.WithLabelValues(kind).Observe(duration.Seconds() * 1000)
	m.sweepFreed.WithLabelValues(kind).Add(float64(freed))
	m.sweepEvictions.WithLabelValues(kind).Add(float64(evictions))
}

func (m *trackerMetrics) RecordStoreSkipped(reason string) {
	m.storesSkipped.WithLabelValues(reason).Inc()
}

func (m *trackerMetrics) RecordAccountingDefect(deficit int64) {
	m.accountingDefects.Inc()
	m.deficitBytes.Add(float64(deficit))
}

func (m *trackerMetrics) RecordStores(n int) {
	m.stores.Set(float64(n))
}
