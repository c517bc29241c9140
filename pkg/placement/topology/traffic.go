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

package topology

import (
	"github.com/kcp-dev/placement-optimizer/pkg/placement/graph"
)

// InterNodeTraffic estimates, per source service, the share of its declared
// traffic that currently crosses node boundaries. Each source pod on node n
// contributes (1 - ColocationRatio(dst, n)) of the edge's traffic cost, weighted
// by the pod's share of the source's replicas. Self-loops never cross nodes.
// Sources without pods are reported as zero.
func InterNodeTraffic(g *graph.Graph, pm PlacementMap) map[string]float64 {
	out := make(map[string]float64)
	for _, source := range g.Sources() {
		total := pm.PodCount(source)
		out[source] = 0
		if total == 0 {
			continue
		}

		for _, edge := range g.Dependencies(source) {
			if edge.Destination == source {
				continue
			}
			for node, pods := range pm[source] {
				share := float64(len(pods)) / float64(total)
				out[source] += share * (1 - ColocationRatio(edge.Destination, node, pm)) * edge.Metadata.TrafficCost
			}
		}
	}
	return out
}
