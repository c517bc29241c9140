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
)

// Engine scores candidate nodes for one service at a time against an
// immutable configuration and association graph. It keeps no state between
// calls, performs no I/O and is safe for concurrent use.
type Engine struct {
	// cfg holds the weights applied to every decision
	cfg Config

	// graph is the static association graph
	graph *graph.Graph

	// scorer normalizes and combines cost vectors
	scorer *Scorer
}

// NewEngine validates cfg and returns an engine bound to it and g.
func NewEngine(cfg Config, g *graph.Graph) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if g == nil {
		return nil, &ConfigError{Field: "associations", Reason: "graph is required"}
	}

	return &Engine{
		cfg:    cfg,
		graph:  g,
		scorer: NewScorer(cfg),
	}, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}

// Graph returns the association graph the engine scores against.
func (e *Engine) Graph() *graph.Graph {
	return e.graph
}

// Place selects the node with the lowest score for service.
//
// Candidates are scanned in the order supplied and the incumbent is only
// replaced on a strict improvement, so among equal scores the first one seen
// wins. An empty candidate list yields a *NoCandidateError. A service with no
// outgoing associations is scored on activation cost alone.
//
// Parameters:
//   - service: the service to place
//   - candidates: pre-filtered candidate nodes, in preference order
//   - state: the placement and latency snapshot to score against
//
// Returns:
//   - *Decision: chosen node, its score and the per-candidate breakdown
//   - error: *NoCandidateError or *ConfigError
func (e *Engine) Place(service string, candidates []string, state State) (*Decision, error) {
	if service == "" {
		return nil, &ConfigError{Field: "service", Reason: "must not be empty"}
	}
	if len(candidates) == 0 {
		return nil, &NoCandidateError{Service: service}
	}

	deps := e.graph.Dependencies(service)

	scored := make([]CandidateScore, 0, len(candidates))
	observedAny := false
	for _, node := range candidates {
		c := CostOf(deps, node, e.cfg, state)
		observedAny = observedAny || c.LatencyObserved
		scored = append(scored, c)
	}

	flat := e.scorer.NormalizeAll(scored)

	best := -1
	for i := range scored {
		if best < 0 || scored[i].Score < scored[best].Score {
			best = i
		}
	}

	d := &Decision{
		Service:    service,
		Node:       scored[best].Node,
		Score:      scored[best].Score,
		Candidates: scored,
	}

	if len(deps) > 0 && !observedAny {
		d.Warnings = append(d.Warnings, MissingMetricError{
			Dimension: DimensionLatency,
			Reason:    "no observed latency for any candidate, using static association latency",
		})
	}
	for _, dim := range flat {
		d.Warnings = append(d.Warnings, MissingMetricError{
			Dimension: dim,
			Reason:    "no discriminating signal across candidates",
		})
	}

	return d, nil
}

// Place is a convenience wrapper that builds an Engine for a single call.
func Place(cfg Config, g *graph.Graph, service string, candidates []string, state State) (*Decision, error) {
	e, err := NewEngine(cfg, g)
	if err != nil {
		return nil, err
	}
	return e.Place(service, candidates, state)
}
