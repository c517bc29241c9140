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
	"gonum.org/v1/gonum/stat"

	"github.com/kcp-dev/placement-optimizer/pkg/placement/scheduler"
	"github.com/kcp-dev/placement-optimizer/pkg/placement/topology"
)

// AggregateByNode folds per-pod values of service into a per-node mean using
// the pod locations in pm. Pods without a value are skipped and nodes with no
// valued pods are left out.
func AggregateByNode(service string, pm topology.PlacementMap, podValues map[string]float64) scheduler.ObservedLatency {
	out := scheduler.ObservedLatency{}
	for node, pods := range pm[service] {
		var values []float64
		for _, pod := range pods {
			if v, ok := podValues[pod]; ok {
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			out[node] = stat.Mean(values, nil)
		}
	}
	return out
}
