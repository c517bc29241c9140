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

// Package telemetry reads live latency and energy signals for the nodes a
// service may be placed on.
package telemetry

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"

	"github.com/kcp-dev/placement-optimizer/pkg/placement/scheduler"
	"github.com/kcp-dev/placement-optimizer/pkg/placement/topology"
)

// LatencySource yields live per-node latency for a service. pm is the
// current pod placement, for sources that measure pods rather than nodes.
type LatencySource interface {
	NodeLatency(ctx context.Context, service string, pm topology.PlacementMap) (scheduler.ObservedLatency, error)
}

// CPUSource yields per-node CPU utilization in [0, 1]. nodeIPs maps node name
// to InternalIP; sources that do not address nodes by IP use it as the set of
// nodes of interest.
type CPUSource interface {
	NodeCPU(ctx context.Context, nodeIPs map[string]string) (map[string]float64, error)
}

// PrometheusSource queries Istio and node-exporter metrics from Prometheus.
type PrometheusSource struct {
	api              promv1.API
	namespace        string
	nodeExporterPort int
}

var (
	_ LatencySource = &PrometheusSource{}
	_ CPUSource     = &PrometheusSource{}
)

// NewPrometheusSource creates a source talking to the Prometheus server at
// address. namespace is the namespace the placed workloads run in.
func NewPrometheusSource(address, namespace string) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client for %s: %w", address, err)
	}
	return NewPrometheusSourceFromAPI(promv1.NewAPI(client), namespace), nil
}

// NewPrometheusSourceFromAPI wraps an existing Prometheus API client.
func NewPrometheusSourceFromAPI(promAPI promv1.API, namespace string) *PrometheusSource {
	return &PrometheusSource{
		api:              promAPI,
		namespace:        namespace,
		nodeExporterPort: DefaultNodeExporterPort,
	}
}

func (s *PrometheusSource) query(ctx context.Context, q string) (model.Value, error) {
	logger := klog.FromContext(ctx)
	logger.V(6).Info("executing Prometheus query", "query", q)

	result, warnings, err := s.api.Query(ctx, q, time.Now())
	if err != nil {
		return nil, fmt.Errorf("prometheus query failed: %w", err)
	}
	if len(warnings) > 0 {
		logger.V(2).Info("Prometheus query returned warnings", "warnings", warnings)
	}
	return result, nil
}

// valuesByLabel flattens an instant vector into label -> value. Samples
// without the label and samples that are not finite numbers are dropped.
func valuesByLabel(v model.Value, label model.LabelName) map[string]float64 {
	out := map[string]float64{}
	vec, ok := v.(model.Vector)
	if !ok {
		return out
	}
	for _, sample := range vec {
		key := string(sample.Metric[label])
		f := float64(sample.Value)
		if key == "" || math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		out[key] = f
	}
	return out
}

// singleValue returns the first finite value of an instant vector or scalar.
func singleValue(v model.Value) (float64, bool) {
	switch r := v.(type) {
	case model.Vector:
		for _, sample := range r {
			f := float64(sample.Value)
			if !math.IsNaN(f) && !math.IsInf(f, 0) {
				return f, true
			}
		}
	case *model.Scalar:
		f := float64(r.Value)
		if !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, true
		}
	}
	return 0, false
}

// NodeLatency returns the median request latency of service per node, in
// milliseconds. Nodes without samples are absent.
//
// Meshes that do not label request metrics with the node yield an empty
// by-node vector. The per-pod medians are then averaged per node using the
// pod locations in pm.
func (s *PrometheusSource) NodeLatency(ctx context.Context, service string, pm topology.PlacementMap) (scheduler.ObservedLatency, error) {
	result, err := s.query(ctx, nodeLatency(service, s.namespace))
	if err != nil {
		return nil, fmt.Errorf("failed to query latency of %s: %w", service, err)
	}
	byNode := valuesByLabel(result, "node")
	if len(byNode) > 0 || len(pm[service]) == 0 {
		return scheduler.ObservedLatency(byNode), nil
	}

	klog.FromContext(ctx).V(4).Info("no per-node latency, aggregating pod latency", "service", service)
	pods, err := s.PodLatency(ctx, service)
	if err != nil {
		return nil, err
	}
	return AggregateByNode(service, pm, pods), nil
}

// PodLatency returns the median request latency of service per pod, in
// milliseconds.
func (s *PrometheusSource) PodLatency(ctx context.Context, service string) (map[string]float64, error) {
	result, err := s.query(ctx, podLatency(service, s.namespace))
	if err != nil {
		return nil, fmt.Errorf("failed to query pod latency of %s: %w", service, err)
	}
	return valuesByLabel(result, "pod"), nil
}

// NodeCPU returns CPU utilization per node, derived from node-exporter idle
// time. Nodes whose query fails or returns nothing are left out; their errors
// are combined and returned next to the partial result.
func (s *PrometheusSource) NodeCPU(ctx context.Context, nodeIPs map[string]string) (map[string]float64, error) {
	nodes := make([]string, 0, len(nodeIPs))
	for n := range nodeIPs {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	out := make(map[string]float64, len(nodes))
	var errs error
	for _, node := range nodes {
		result, err := s.query(ctx, nodeCPU(nodeIPs[node], s.nodeExporterPort))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("node %s: %w", node, err))
			continue
		}
		if v, ok := singleValue(result); ok {
			out[node] = clamp01(v)
		}
	}
	return out, errs
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
