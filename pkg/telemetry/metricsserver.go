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

package telemetry

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"
)

// MetricsServerSource reads node CPU usage from metrics-server and divides it
// by the node's allocatable CPU.
type MetricsServerSource struct {
	kubeClient    kubernetes.Interface
	metricsClient metricsclientset.Interface
}

var _ CPUSource = &MetricsServerSource{}

// NewMetricsServerSource creates a CPU source backed by metrics-server.
func NewMetricsServerSource(kubeClient kubernetes.Interface, metricsClient metricsclientset.Interface) *MetricsServerSource {
	return &MetricsServerSource{kubeClient: kubeClient, metricsClient: metricsClient}
}

// NodeCPU implements CPUSource. When nodeIPs is non-empty only those nodes
// are reported.
func (s *MetricsServerSource) NodeCPU(ctx context.Context, nodeIPs map[string]string) (map[string]float64, error) {
	nodes, err := s.kubeClient.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	allocatable := make(map[string]int64, len(nodes.Items))
	for _, n := range nodes.Items {
		allocatable[n.Name] = n.Status.Allocatable.Cpu().MilliValue()
	}

	usage, err := s.metricsClient.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list node metrics: %w", err)
	}

	out := make(map[string]float64, len(usage.Items))
	for _, m := range usage.Items {
		if len(nodeIPs) > 0 {
			if _, ok := nodeIPs[m.Name]; !ok {
				continue
			}
		}
		alloc := allocatable[m.Name]
		if alloc <= 0 {
			continue
		}
		out[m.Name] = clamp01(float64(m.Usage.Cpu().MilliValue()) / float64(alloc))
	}
	return out, nil
}
