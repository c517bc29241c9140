/*
Copyright 2024 The KCP Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


// Package metrics holds the Prometheus registry the optimizer exposes and the
// lifecycle of the collectors that feed it.
package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"
)

// MeterName is the instrumentation scope of OpenTelemetry instruments.
const MeterName = "github.com/kcp-dev/placement-optimizer/metrics"

// MetricsRegistry manages the optimizer's metrics and the collectors that
// produce them.
type MetricsRegistry struct {
	mu sync.RWMutex

	promRegistry *prometheus.Registry
	meter        metric.Meter

	enabled    bool
	collectors map[string]MetricCollector
}

// MetricCollector is a named group of metrics with a lifecycle.
type MetricCollector interface {
	// Name returns the unique name of the collector.
	Name() string

	// Init creates and registers the collector's metrics.
	Init(registry *MetricsRegistry) error

	// Collect refreshes metrics that are sampled rather than pushed.
	Collect() error

	// Close releases the collector. Recording after Close is a no-op.
	Close() error
}

// NewMetricsRegistry creates a registry. A disabled registry accepts
// registrations but never initializes collectors.
func NewMetricsRegistry(enabled bool) *MetricsRegistry {
	registry := &MetricsRegistry{
		promRegistry: prometheus.NewRegistry(),
		meter:        otel.Meter(MeterName),
		enabled:      enabled,
		collectors:   make(map[string]MetricCollector),
	}
	if enabled {
		registry.promRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	klog.V(2).InfoS("Created metrics registry", "enabled", enabled)
	return registry
}

// RegisterCollector initializes collector and adds it to the registry.
// Registering a name twice keeps the first collector.
func (r *MetricsRegistry) RegisterCollector(collector MetricCollector) error {
	if !r.enabled {
		klog.V(4).InfoS("Metrics disabled, skipping collector registration", "collector", collector.Name())
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := collector.Name()
	if _, exists := r.collectors[name]; exists {
		klog.V(2).InfoS("Collector already registered, skipping", "collector", name)
		return nil
	}

	if err := collector.Init(r); err != nil {
		return err
	}

	r.collectors[name] = collector
	klog.V(2).InfoS("Registered metric collector", "collector", name)
	return nil
}

// Collector returns the registered collector called name.
func (r *MetricsRegistry) Collector(name string) (MetricCollector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collectors[name]
	return c, ok
}

// CollectorNames returns the names of the registered collectors, sorted.
func (r *MetricsRegistry) CollectorNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.collectors))
	for name := range r.collectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *MetricsRegistry) GetPrometheusRegistry() *prometheus.Registry {
	return r.promRegistry
}

// GetMeter returns the OpenTelemetry meter for creating instruments.
func (r *MetricsRegistry) GetMeter() metric.Meter {
	return r.meter
}

// IsEnabled returns whether metrics collection is enabled.
func (r *MetricsRegistry) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// CollectAll runs Collect on every collector and returns the combined errors.
func (r *MetricsRegistry) CollectAll() error {
	if !r.enabled {
		return nil
	}

	var errs error
	for _, name := range r.CollectorNames() {
		c, ok := r.Collector(name)
		if !ok {
			continue
		}
		if err := c.Collect(); err != nil {
			klog.ErrorS(err, "Failed to collect metrics", "collector", name)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Close closes every collector. The registry keeps serving the last values.
func (r *MetricsRegistry) Close() error {
	if !r.enabled {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var errs error
	for name, collector := range r.collectors {
		if err := collector.Close(); err != nil {
			klog.ErrorS(err, "Failed to close metric collector", "collector", name)
			errs = multierr.Append(errs, err)
		}
	}
	klog.V(2).InfoS("Closed metric collectors", "count", len(r.collectors))
	return errs
}

// MustRegister registers Prometheus collectors and panics on failure.
func (r *MetricsRegistry) MustRegister(collectors ...prometheus.Collector) {
	r.promRegistry.MustRegister(collectors...)
}

// Register registers a Prometheus collector.
func (r *MetricsRegistry) Register(collector prometheus.Collector) error {
	return r.promRegistry.Register(collector)
}
