package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittocache/pkg/cache"
	"github.com/marmos91/dittocache/pkg/metrics"
)

// cacheMetrics is the Prometheus implementation of cache.Metrics.
type cacheMetrics struct {
	writes           *prometheus.CounterVec
	writeDuration    *prometheus.HistogramVec
	writeBytes       *prometheus.HistogramVec
	evictions        *prometheus.CounterVec
	evictionDuration *prometheus.HistogramVec
	bufferedBytes    *prometheus.GaugeVec
	bufferedBlocks   *prometheus.GaugeVec
}

// NewCacheMetrics creates a Prometheus-backed cache.Metrics shared by every
// cache; series are labelled by cache name.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCacheMetrics() cache.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return newCacheMetrics(metrics.GetRegistry())
}

func newCacheMetrics(reg prometheus.Registerer) *cacheMetrics {
	return &cacheMetrics{
		writes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocache_cache_writes_total",
				Help: "Block writes by cache and mode",
			},
			[]string{"cache", "mode"}, // mode: "buffered", "write-through"
		),
		writeDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittocache_cache_write_duration_milliseconds",
				Help: "Duration of block writes in milliseconds",
				Buckets: []float64{
					0.1,  // 100us - buffered writes
					0.5,  // 500us
					1,    // 1ms
					5,    // 5ms
					10,   // 10ms
					50,   // 50ms
					100,  // 100ms - write-through to S3
					500,  // 500ms
					1000, // 1s
				},
			},
			[]string{"cache", "mode"},
		),
		writeBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittocache_cache_write_bytes",
				Help: "Distribution of written block sizes",
				Buckets: []float64{
					4096,     // 4KB
					32768,    // 32KB
					131072,   // 128KB
					524288,   // 512KB
					1048576,  // 1MB
					4194304,  // 4MB
					10485760, // 10MB
				},
			},
			[]string{"cache"},
		),
		evictions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocache_cache_evictions_total",
				Help: "Block flushes to the backend by cache and status",
			},
			[]string{"cache", "status"}, // status: "success", "error"
		),
		evictionDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittocache_cache_eviction_duration_milliseconds",
				Help: "Duration of block flushes in milliseconds",
				Buckets: []float64{
					0.5,  // 500us - memory backend
					1,    // 1ms
					5,    // 5ms - local disk
					10,   // 10ms
					50,   // 50ms
					100,  // 100ms - object storage
					500,  // 500ms
					1000, // 1s
					5000, // 5s
				},
			},
			[]string{"cache"},
		),
		bufferedBytes: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittocache_cache_buffered_bytes",
				Help: "Bytes buffered per cache",
			},
			[]string{"cache"},
		),
		bufferedBlocks: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittocache_cache_buffered_blocks",
				Help: "Blocks buffered per cache",
			},
			[]string{"cache"},
		),
	}
}

func (m *cacheMetrics) ObserveWrite(cacheName, mode string, bytes int64, d time.Duration) {
	m.writes.WithLabelValues(cacheName, mode).Inc()
	m.writeDuration.WithLabelValues(cacheName, mode).Observe(d.Seconds() * 1000)
	if bytes > 0 {
		m.writeBytes.WithLabelValues(cacheName).Observe(float64(bytes))
	}
}

func (m *cacheMetrics) ObserveEviction(cacheName string, _ int64, ok bool, d time.Duration) {
	status := "success"
	if !ok {
		status = "error"
	}
	m.evictions.WithLabelValues(cacheName, status).Inc()
	m.evictionDuration.WithLabelValues(cacheName).Observe(d.Seconds() * 1000)
}

func (m *cacheMetrics) RecordBuffered(cacheName string, bytes int64, blocks int) {
	m.bufferedBytes.WithLabelValues(cacheName).Set(float64(bytes))
	m.bufferedBlocks.WithLabelValues(cacheName).Set(float64(blocks))
}
