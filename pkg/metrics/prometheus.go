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


package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names are prefixed placement_optimizer_<subsystem>_.
const (
	MetricNamespace = "placement_optimizer"

	PlacementSubsystem = "placement"
	NodeSubsystem      = "node"
)

// Label names shared across collectors.
const (
	LabelService = "service"
	LabelNode    = "node"
	LabelStatus  = "status"
)

// Values of LabelStatus on decision metrics.
const (
	StatusSelected    = "selected"
	StatusApplied     = "applied"
	StatusNoCandidate = "no_candidate"
	StatusConfigError = "config_error"
	StatusError       = "error"
)

// PrometheusMetrics creates metrics under MetricNamespace and registers them
// with a MetricsRegistry.
type PrometheusMetrics struct {
	registry *MetricsRegistry
}

// NewPrometheusMetrics creates a new PrometheusMetrics helper.
func NewPrometheusMetrics(registry *MetricsRegistry) *PrometheusMetrics {
	return &PrometheusMetrics{
		registry: registry,
	}
}

// NewCounterVec creates a CounterVec in subsystem.
func (p *PrometheusMetrics) NewCounterVec(subsystem, name, help string, labelNames []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricNamespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labelNames)
}

// NewGaugeVec creates a GaugeVec in subsystem.
func (p *PrometheusMetrics) NewGaugeVec(subsystem, name, help string, labelNames []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricNamespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labelNames)
}

// NewHistogramVec creates a HistogramVec in subsystem with the given buckets.
func (p *PrometheusMetrics) NewHistogramVec(subsystem, name, help string, labelNames []string, buckets []float64) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricNamespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labelNames)
}

// MustRegister registers collectors with the underlying registry.
func (p *PrometheusMetrics) MustRegister(collectors ...prometheus.Collector) {
	p.registry.MustRegister(collectors...)
}

// Register registers collector with the underlying registry.
func (p *PrometheusMetrics) Register(collector prometheus.Collector) error {
	return p.registry.Register(collector)
}

var (
	// LatencyBuckets for decision and reconcile durations, in seconds.
	LatencyBuckets = []float64{
		0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
	}
)

// ServiceLabels returns the labels of a service-scoped metric.
func ServiceLabels(service string) prometheus.Labels {
	return prometheus.Labels{LabelService: service}
}

// NodeLabels returns the labels of a node-scoped metric.
func NodeLabels(node string) prometheus.Labels {
	return prometheus.Labels{LabelNode: node}
}
