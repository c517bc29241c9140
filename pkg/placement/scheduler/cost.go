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

package scheduler

import (
	"github.com/kcp-dev/placement-optimizer/pkg/placement/graph"
	"github.com/kcp-dev/placement-optimizer/pkg/placement/topology"
)

// effectiveLatency returns the latency in seconds to charge for one
// dependency when placing on node. A live observation (milliseconds) always
// wins over the static association estimate.
func effectiveLatency(node string, colocated bool, meta graph.EdgeMetadata, observed ObservedLatency) (float64, bool) {
	if ms, ok := observed.Lookup(node); ok {
		return ms / 1000.0, true
	}
	if colocated {
		return meta.ColocatedLatency, false
	}
	return meta.RemoteLatency, false
}

// CostOf computes the raw cost of placing service on node.
//
// Traffic decays linearly with the colocation ratio of each dependency.
// Latency is summed over dependencies, so services with a wide fan-out carry
// a proportionally larger latency cost. Activation is the idle node penalty
// when node currently hosts no pods of any service.
func CostOf(deps []graph.Edge, node string, cfg Config, state State) CandidateScore {
	c := CandidateScore{Node: node}
	if len(deps) > 0 {
		c.Colocation = make(map[string]float64, len(deps))
	}

	for _, dep := range deps {
		ratio := topology.ColocationRatio(dep.Destination, node, state.Placement)
		c.Colocation[dep.Destination] = ratio

		c.Raw.Traffic += (1 - ratio) * dep.Metadata.TrafficCost

		colocated := topology.IsColocated(dep.Destination, node, state.Placement)
		latency, observed := effectiveLatency(node, colocated, dep.Metadata, state.ObservedLatency)
		c.Raw.Latency += latency
		c.LatencyObserved = c.LatencyObserved || observed
	}

	if !state.Placement.NodeHasPods(node) {
		c.Raw.Activation = cfg.IdleNodePenalty
	}
	return c
}
