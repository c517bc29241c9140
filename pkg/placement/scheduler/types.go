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
	"math"

	"github.com/kcp-dev/placement-optimizer/pkg/placement/topology"
)

// Config holds the weights and penalties used to score candidate nodes.
// Weights are applied as given; they are not required to sum to one.
type Config struct {
	// LatencyWeight (alpha) scales the normalized latency cost.
	LatencyWeight float64 `json:"latencyWeight"`

	// TrafficWeight (gamma) scales the normalized inter-node traffic cost.
	TrafficWeight float64 `json:"trafficWeight"`

	// EnergyWeight (beta) scales the normalized activation cost.
	EnergyWeight float64 `json:"energyWeight"`

	// IdleNodePenalty is the activation cost charged for a node that hosts
	// no pods of any service.
	IdleNodePenalty float64 `json:"idleNodePenalty"`
}

// DefaultConfig returns the weights the optimizer was tuned with.
func DefaultConfig() Config {
	return Config{
		LatencyWeight:   0.5,
		TrafficWeight:   0.2,
		EnergyWeight:    0.3,
		IdleNodePenalty: 2.38,
	}
}

// Validate rejects weights that are not finite numbers. The first offending
// field in declaration order is reported.
func (c Config) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"latencyWeight", c.LatencyWeight},
		{"trafficWeight", c.TrafficWeight},
		{"energyWeight", c.EnergyWeight},
		{"idleNodePenalty", c.IdleNodePenalty},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &ConfigError{Field: f.name, Reason: "must be a finite number"}
		}
	}
	return nil
}

// ObservedLatency maps node -> measured latency in milliseconds. Nodes without
// an entry have no live measurement.
type ObservedLatency map[string]float64

// Lookup returns the observation for node. Negative or non-finite samples are
// reported as absent.
func (o ObservedLatency) Lookup(node string) (float64, bool) {
	v, ok := o[node]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

// DeepCopy returns an independent copy.
func (o ObservedLatency) DeepCopy() ObservedLatency {
	if o == nil {
		return nil
	}
	out := make(ObservedLatency, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// State is the live snapshot a decision is made against. Callers refresh it
// before each decision and must not mutate it while a decision is running.
type State struct {
	Placement       topology.PlacementMap `json:"placement"`
	ObservedLatency ObservedLatency       `json:"observedLatency,omitempty"`
}

// CostVector is the per-candidate cost along each scored dimension.
type CostVector struct {
	Traffic    float64 `json:"traffic"`
	Latency    float64 `json:"latency"`
	Activation float64 `json:"activation"`
}

// CandidateScore explains how a single candidate node was scored.
type CandidateScore struct {
	Node string `json:"node"`

	// Raw is the cost before normalization.
	Raw CostVector `json:"raw"`

	// Normalized is Raw scaled to [0,1] across the candidate set.
	Normalized CostVector `json:"normalized"`

	// Score is the weighted sum of Normalized. Lower is better.
	Score float64 `json:"score"`

	// Colocation holds the colocation ratio per dependency.
	Colocation map[string]float64 `json:"colocation,omitempty"`

	// LatencyObserved is true when a live measurement replaced the static
	// association latency for this node.
	LatencyObserved bool `json:"latencyObserved"`
}

// Decision is the outcome of a single placement call.
type Decision struct {
	Service string  `json:"service"`
	Node    string  `json:"node"`
	Score   float64 `json:"score"`

	// Candidates are listed in the order they were supplied.
	Candidates []CandidateScore `json:"candidates"`

	// Warnings lists the signals that were missing when the decision was made.
	Warnings []MissingMetricError `json:"warnings,omitempty"`
}
