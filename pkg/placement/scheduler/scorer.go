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
)

// Scorer normalizes cost vectors across a candidate set and combines them
// into a single weighted score.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer with the given weights.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Normalize scales value from [min, max] to [0, 1]. When max == min there is
// no spread to scale against and the result is 0.
func Normalize(value, min, max float64) float64 {
	if max == min {
		return 0.0
	}

	normalized := (value - min) / (max - min)

	if normalized < 0 {
		return 0
	}
	if normalized > 1 {
		return 1
	}

	return normalized
}

// Combine returns the weighted sum of a normalized cost vector.
func (s *Scorer) Combine(n CostVector) float64 {
	return s.cfg.LatencyWeight*n.Latency +
		s.cfg.TrafficWeight*n.Traffic +
		s.cfg.EnergyWeight*n.Activation
}

// bounds holds the observed range of one dimension.
type bounds struct {
	min, max float64
}

func (b *bounds) observe(v float64, first bool) {
	if first {
		b.min, b.max = v, v
		return
	}
	b.min = math.Min(b.min, v)
	b.max = math.Max(b.max, v)
}

func (b bounds) flat() bool {
	return b.min == b.max
}

// NormalizeAll fills Normalized and Score on every candidate and returns the
// dimensions that carried no discriminating signal. Traffic and latency are
// scaled against their observed range. Activation is binary by construction
// and is scaled against {0, IdleNodePenalty}.
func (s *Scorer) NormalizeAll(candidates []CandidateScore) []string {
	var traffic, latency bounds
	for i, c := range candidates {
		traffic.observe(c.Raw.Traffic, i == 0)
		latency.observe(c.Raw.Latency, i == 0)
	}
	activation := bounds{
		min: math.Min(0, s.cfg.IdleNodePenalty),
		max: math.Max(0, s.cfg.IdleNodePenalty),
	}

	for i := range candidates {
		c := &candidates[i]
		c.Normalized = CostVector{
			Traffic:    Normalize(c.Raw.Traffic, traffic.min, traffic.max),
			Latency:    Normalize(c.Raw.Latency, latency.min, latency.max),
			Activation: Normalize(c.Raw.Activation, activation.min, activation.max),
		}
		c.Score = s.Combine(c.Normalized)
	}

	if len(candidates) < 2 {
		return nil
	}
	var flat []string
	if latency.flat() {
		flat = append(flat, DimensionLatency)
	}
	if traffic.flat() {
		flat = append(flat, DimensionTraffic)
	}
	if activation.flat() || allEqualActivation(candidates) {
		flat = append(flat, DimensionActivation)
	}
	return flat
}

func allEqualActivation(candidates []CandidateScore) bool {
	for _, c := range candidates[1:] {
		if c.Raw.Activation != candidates[0].Raw.Activation {
			return false
		}
	}
	return true
}
