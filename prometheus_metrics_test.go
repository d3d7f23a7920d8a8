package boxdrive

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewPrometheusMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	if metrics == nil {
		t.Fatal("expected PrometheusMetrics, got nil")
	}
	if metrics.registry != registry {
		t.Error("registry not set correctly")
	}
	if len(metrics.counters) == 0 {
		t.Error("expected counters to be registered")
	}
	if len(metrics.gauges) == 0 {
		t.Error("expected gauges to be registered")
	}
	if len(metrics.histograms) == 0 {
		t.Error("expected histograms to be registered")
	}
}

func TestNewPrometheusMetricsWithNilRegistry(t *testing.T) {
	t.Skip("would pollute the default Prometheus registry")
}

func TestPrometheusMetricsIncrement(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	metrics.Increment(MetricBackendOps, "operation", "get_object", "bucket", "photos")
	metrics.Increment(MetricBackendOps, "operation", "put_object", "bucket", "photos")
	metrics.Increment(MetricBackendOps, "operation", "delete_object", "bucket", "photos")

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metricFamilies {
		if strings.Contains(mf.GetName(), "operations_total") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected store operations_total metric to be registered")
	}
}

func TestPrometheusMetricsGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	metrics.Gauge(MetricLockActive, 5)
	metrics.Gauge(MetricCircuitOpen, 1)

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metricFamilies {
		if strings.Contains(mf.GetName(), "lock_active") || strings.Contains(mf.GetName(), "circuit_breaker_open") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected gauge metrics to be registered")
	}
}

func TestPrometheusMetricsHistogram(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	metrics.Histogram(MetricBackendLatency, 0.1, "operation", "get_object", "bucket", "photos")
	metrics.Histogram(MetricBackendLatency, 0.05, "operation", "get_object", "bucket", "photos")
	metrics.Histogram(MetricBackendLatency, 0.15, "operation", "put_object", "bucket", "photos")

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metricFamilies {
		if strings.Contains(mf.GetName(), "operation_duration_seconds") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected store operation duration histogram to be registered")
	}
}

func TestPrometheusMetricsTiming(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	metrics.Timing(MetricBackendLatency, 100*time.Millisecond, "operation", "get_object", "bucket", "photos")
	metrics.Timing(MetricBackendLatency, 50*time.Millisecond, "operation", "get_object", "bucket", "photos")

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metricFamilies {
		if strings.Contains(mf.GetName(), "operation_duration_seconds") {
			found = true
			if mf.GetType() != 4 { // HISTOGRAM = 4
				t.Errorf("expected histogram type, got %v", mf.GetType())
			}
			break
		}
	}
	if !found {
		t.Error("expected store operation duration metric")
	}
}

func TestPrometheusMetricsGetRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	if retrieved := metrics.GetRegistry(); retrieved != registry {
		t.Error("GetRegistry returned wrong registry")
	}
}

func TestPrometheusMetricsLabelExtraction(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	metrics.Increment(MetricBackendOps, "operation", "get_object", "bucket", "photos")
	metrics.Increment(MetricGitLabCalls, "operation", "create_file", "status", "201")
}

func TestPrometheusMetricsAllMetricTypes(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	metrics.Increment(MetricBackendOps, "operation", "get_object", "bucket", "photos")
	metrics.Increment(MetricBackendErrors, "operation", "put_object", "bucket", "photos", "error_type", "remote")
	metrics.Increment(MetricGitLabCalls, "operation", "create_file", "status", "201")
	metrics.Increment(MetricGitLabErrors, "operation", "delete_file")

	metrics.Gauge(MetricLockActive, 3)
	metrics.Gauge(MetricCircuitOpen, 0)

	metrics.Histogram(MetricBackendLatency, 0.075, "operation", "get_object", "bucket", "photos")
	metrics.Histogram(MetricListResults, 12, "bucket", "photos")

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	if len(metricFamilies) < 5 {
		t.Errorf("expected at least 5 metric families, got %d", len(metricFamilies))
	}
}

func TestPrometheusMetricsImplementsInterface(t *testing.T) {
	var _ Metrics = &PrometheusMetrics{}
}

func TestPrometheusMetricsConcurrency(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				metrics.Increment(MetricBackendOps, "operation", "get_object", "bucket", "test")
				metrics.Gauge(MetricLockActive, float64(j))
				metrics.Histogram(MetricBackendLatency, float64(j), "operation", "get_object", "bucket", "test")
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}
