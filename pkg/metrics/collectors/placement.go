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


package collectors

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"k8s.io/klog/v2"

	"github.com/kcp-dev/placement-optimizer/pkg/metrics"
	"github.com/kcp-dev/placement-optimizer/pkg/placement/scheduler"
	"github.com/kcp-dev/placement-optimizer/pkg/telemetry"
)

// PlacementCollector records placement decisions, the scores behind them and
// the traffic and energy state of the cluster they were made in.
type PlacementCollector struct {
	mu sync.RWMutex

	decisions        *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
	candidateScore   *prometheus.GaugeVec
	missingSignals   *prometheus.CounterVec
	interNodeTraffic *prometheus.GaugeVec
	nodePower        *prometheus.GaugeVec
	nodeCPU          *prometheus.GaugeVec

	durationHistogram metric.Float64Histogram

	registry *metrics.MetricsRegistry
	enabled  bool
}

var _ metrics.MetricCollector = &PlacementCollector{}

// NewPlacementCollector creates a placement collector. It records nothing
// until registered.
func NewPlacementCollector() *PlacementCollector {
	return &PlacementCollector{}
}

// Name implements metrics.MetricCollector.
func (c *PlacementCollector) Name() string {
	return "placement"
}

// Init implements metrics.MetricCollector.
func (c *PlacementCollector) Init(registry *metrics.MetricsRegistry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.registry = registry
	prom := metrics.NewPrometheusMetrics(registry)

	c.decisions = prom.NewCounterVec(
		metrics.PlacementSubsystem,
		"decisions_total",
		"Total number of placement decisions by outcome",
		[]string{metrics.LabelService, metrics.LabelNode, metrics.LabelStatus},
	)

	c.decisionDuration = prom.NewHistogramVec(
		metrics.PlacementSubsystem,
		"decision_duration_seconds",
		"Time taken to score the candidates of a service",
		[]string{metrics.LabelService},
		metrics.LatencyBuckets,
	)

	c.candidateScore = prom.NewGaugeVec(
		metrics.PlacementSubsystem,
		"candidate_score",
		"Weighted normalized cost of each candidate node in the latest decision, lower is better",
		[]string{metrics.LabelService, metrics.LabelNode},
	)

	c.missingSignals = prom.NewCounterVec(
		metrics.PlacementSubsystem,
		"missing_signals_total",
		"Total number of decisions made without a usable signal for a cost dimension",
		[]string{metrics.LabelService, "dimension"},
	)

	c.interNodeTraffic = prom.NewGaugeVec(
		metrics.PlacementSubsystem,
		"inter_node_traffic",
		"Traffic cost a service sends to dependencies on other nodes",
		[]string{metrics.LabelService},
	)

	c.nodePower = prom.NewGaugeVec(
		metrics.NodeSubsystem,
		"power_watts",
		"Estimated power draw of a node, zero for nodes hosting no pods",
		[]string{metrics.LabelNode},
	)

	c.nodeCPU = prom.NewGaugeVec(
		metrics.NodeSubsystem,
		"cpu_utilization",
		"CPU utilization of a node between 0 and 1",
		[]string{metrics.LabelNode},
	)

	prom.MustRegister(
		c.decisions,
		c.decisionDuration,
		c.candidateScore,
		c.missingSignals,
		c.interNodeTraffic,
		c.nodePower,
		c.nodeCPU,
	)

	hist, err := registry.GetMeter().Float64Histogram(
		"placement.decision.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time taken to score the candidates of a service"),
	)
	if err != nil {
		return err
	}
	c.durationHistogram = hist

	c.enabled = true
	klog.V(2).Info("Initialized placement metrics collector")
	return nil
}

// Collect implements metrics.MetricCollector. All placement metrics are
// pushed by the Record methods.
func (c *PlacementCollector) Collect() error {
	return nil
}

// Close implements metrics.MetricCollector.
func (c *PlacementCollector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = false
	klog.V(2).Info("Closed placement metrics collector")
	return nil
}

func (c *PlacementCollector) isEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// RecordDecision records a successful decision. The candidate scores of the
// service are replaced by those of d.
func (c *PlacementCollector) RecordDecision(ctx context.Context, d *scheduler.Decision, applied bool, duration time.Duration) {
	if !c.isEnabled() || d == nil {
		return
	}

	status := metrics.StatusSelected
	if applied {
		status = metrics.StatusApplied
	}
	c.decisions.WithLabelValues(d.Service, d.Node, status).Inc()
	c.observeDuration(ctx, d.Service, duration)

	c.candidateScore.DeletePartialMatch(metrics.ServiceLabels(d.Service))
	for _, cand := range d.Candidates {
		c.candidateScore.WithLabelValues(d.Service, cand.Node).Set(cand.Score)
	}
	for _, w := range d.Warnings {
		c.missingSignals.WithLabelValues(d.Service, w.Dimension).Inc()
	}
}

// RecordFailure records a decision that could not be made.
func (c *PlacementCollector) RecordFailure(ctx context.Context, service string, err error, duration time.Duration) {
	if !c.isEnabled() {
		return
	}

	c.decisions.WithLabelValues(service, "", failureStatus(err)).Inc()
	c.observeDuration(ctx, service, duration)
}

func (c *PlacementCollector) observeDuration(ctx context.Context, service string, duration time.Duration) {
	c.decisionDuration.WithLabelValues(service).Observe(duration.Seconds())
	c.durationHistogram.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(metrics.LabelService, service)))
}

func failureStatus(err error) string {
	var noCandidate *scheduler.NoCandidateError
	var configErr *scheduler.ConfigError
	switch {
	case errors.As(err, &noCandidate):
		return metrics.StatusNoCandidate
	case errors.As(err, &configErr):
		return metrics.StatusConfigError
	default:
		return metrics.StatusError
	}
}

// RecordInterNodeTraffic sets the inter-node traffic of every service.
func (c *PlacementCollector) RecordInterNodeTraffic(traffic map[string]float64) {
	if !c.isEnabled() {
		return
	}
	for service, v := range traffic {
		c.interNodeTraffic.WithLabelValues(service).Set(v)
	}
}

// RecordEnergySnapshot sets the power and CPU gauges of every node in snap.
func (c *PlacementCollector) RecordEnergySnapshot(snap telemetry.EnergySnapshot) {
	if !c.isEnabled() {
		return
	}
	for node, e := range snap {
		c.nodePower.WithLabelValues(node).Set(e.PowerWatts)
		c.nodeCPU.WithLabelValues(node).Set(e.CPUUtil)
	}
}
