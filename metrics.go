package boxdrive

import "time"

// Metrics provides observability for boxdrive operations
type Metrics interface {
	// Increment increases a counter by 1
	Increment(name string, tags ...string)

	// Gauge sets an absolute value
	Gauge(name string, value float64, tags ...string)

	// Histogram records a value distribution (latency, size, etc)
	Histogram(name string, value float64, tags ...string)

	// Timing records a duration
	Timing(name string, duration time.Duration, tags ...string)
}

// NoOpMetrics is a metrics collector that does nothing
type NoOpMetrics struct{}

func (m *NoOpMetrics) Increment(name string, tags ...string)                    {}
func (m *NoOpMetrics) Gauge(name string, value float64, tags ...string)         {}
func (m *NoOpMetrics) Histogram(name string, value float64, tags ...string)     {}
func (m *NoOpMetrics) Timing(name string, duration time.Duration, tags ...string) {}

// InMemoryMetrics stores metrics in memory for testing
type InMemoryMetrics struct {
	Counters   map[string]int
	Gauges     map[string]float64
	Histograms map[string][]float64
	Timings    map[string][]time.Duration
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		Counters:   make(map[string]int),
		Gauges:     make(map[string]float64),
		Histograms: make(map[string][]float64),
		Timings:    make(map[string][]time.Duration),
	}
}

func (m *InMemoryMetrics) Increment(name string, tags ...string) {
	m.Counters[name]++
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...string) {
	m.Gauges[name] = value
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...string) {
	m.Histograms[name] = append(m.Histograms[name], value)
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...string) {
	m.Timings[name] = append(m.Timings[name], duration)
}

// Common metric names
const (
	MetricGetSuccess     = "boxdrive.get_object.success"
	MetricGetError       = "boxdrive.get_object.error"
	MetricGetDuration    = "boxdrive.get_object.duration"
	MetricPutSuccess     = "boxdrive.put_object.success"
	MetricPutError       = "boxdrive.put_object.error"
	MetricPutDuration    = "boxdrive.put_object.duration"
	MetricHeadSuccess    = "boxdrive.head_object.success"
	MetricHeadError      = "boxdrive.head_object.error"
	MetricDeleteSuccess  = "boxdrive.delete_object.success"
	MetricDeleteError    = "boxdrive.delete_object.error"
	MetricDeleteDuration = "boxdrive.delete_object.duration"
	MetricListDuration   = "boxdrive.list_objects.duration"
	MetricListResults    = "boxdrive.list_objects.results"

	MetricLockAcquired     = "boxdrive.lock.acquired"
	MetricLockFailed       = "boxdrive.lock.failed"
	MetricLockDuration     = "boxdrive.lock.duration"
	MetricLockContention   = "boxdrive.lock.contention"    // Acquisitions that waited over 5ms
	MetricLockTimeout      = "boxdrive.lock.timeout"       // Locks that timed out
	MetricLockWaitTime     = "boxdrive.lock.wait_duration" // Time spent waiting for locks
	MetricLockActive       = "boxdrive.lock.active"
	MetricLockOrphaned     = "boxdrive.lock.orphaned"
	MetricLockCleanup      = "boxdrive.lock.cleanup"
	MetricLockForceRelease = "boxdrive.lock.force_release"

	// Additional metrics for Prometheus integration
	MetricBackendOps     = "boxdrive.backend.ops"
	MetricBackendErrors  = "boxdrive.backend.errors"
	MetricBackendLatency = "boxdrive.backend.latency"
	MetricGitLabCalls    = "boxdrive.gitlab.calls"
	MetricGitLabErrors   = "boxdrive.gitlab.errors"
	MetricGitLabLatency  = "boxdrive.gitlab.latency"
	MetricKeysmithWait   = "boxdrive.keysmith.wait_duration"
	MetricCircuitOpen    = "boxdrive.circuit_breaker.open"
)

// Production integrations:
//
// For Prometheus (github.com/prometheus/client_golang):
//   type PrometheusMetrics struct {
//       counters   map[string]prometheus.Counter
//       gauges     map[string]prometheus.Gauge
//       histograms map[string]prometheus.Histogram
//   }
//
// For Datadog (github.com/DataDog/datadog-go/statsd):
//   type DatadogMetrics struct { client *statsd.Client }
//   func (m *DatadogMetrics) Increment(name string, tags ...string) {
//       m.client.Incr(name, tags, 1)
//   }
//
// For StatsD:
//   type StatsDMetrics struct { client *statsd.Client }
//   func (m *StatsDMetrics) Timing(name string, duration time.Duration, tags ...string) {
//       m.client.Timing(name, duration, tags...)
//   }
