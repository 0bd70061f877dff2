package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittocache/pkg/metrics"
	"github.com/marmos91/dittocache/pkg/store/block"
)

// backendMetrics is the Prometheus implementation of block.Metrics.
type backendMetrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewBackendMetrics creates a Prometheus-backed block.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewBackendMetrics() block.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return newBackendMetrics(metrics.GetRegistry())
}

func newBackendMetrics(reg prometheus.Registerer) *backendMetrics {
	return &backendMetrics{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocache_backend_operations_total",
				Help: "Backend operations by backend, operation and status",
			},
			[]string{"backend", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittocache_backend_operation_duration_milliseconds",
				Help: "Duration of backend operations in milliseconds",
				Buckets: []float64{
					0.1,   // 100us - memory
					1,     // 1ms - badger
					5,     // 5ms - local disk
					10,    // 10ms
					50,    // 50ms - small objects
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s
					5000,  // 5s - large objects
					30000, // 30s
				},
			},
			[]string{"backend", "operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocache_backend_bytes_total",
				Help: "Bytes moved to and from backends",
			},
			[]string{"backend", "direction"}, // "write", "read"
		),
	}
}

func (m *backendMetrics) ObserveOperation(backend, operation, status string, bytes int64, d time.Duration) {
	m.operations.WithLabelValues(backend, operation, status).Inc()
	m.operationDuration.WithLabelValues(backend, operation).Observe(d.Seconds() * 1000)
	if bytes > 0 && status == "success" && (operation == "write" || operation == "read") {
		m.bytesTransferred.WithLabelValues(backend, operation).Add(float64(bytes))
	}
}
