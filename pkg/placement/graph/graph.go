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

// Package graph holds the static association graph describing which services
// talk to which, and what that conversation costs.
package graph

import (
	"fmt"
	"math"
	"sort"
)

// EdgeMetadata carries the static cost estimates for one association.
type EdgeMetadata struct {
	// TrafficCost is the relative volume exchanged between source and destination.
	TrafficCost float64 `json:"trafficCost"`

	// ColocatedLatency is the expected latency in seconds when every destination
	// pod shares the node with the source.
	ColocatedLatency float64 `json:"colocatedLatency"`

	// RemoteLatency is the expected latency in seconds otherwise.
	RemoteLatency float64 `json:"remoteLatency"`
}

// Validate reports the first field that is negative or not a finite number.
func (m EdgeMetadata) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"trafficCost", m.TrafficCost},
		{"colocatedLatency", m.ColocatedLatency},
		{"remoteLatency", m.RemoteLatency},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%s must be a finite number, got %v", f.name, f.v)
		}
		if f.v < 0 {
			return fmt.Errorf("%s must not be negative, got %v", f.name, f.v)
		}
	}
	return nil
}

// Edge is a directed association from the owning service to Destination.
// Source == Destination models the intrinsic per-pod cost of a service
// without a real dependency.
type Edge struct {
	Destination string       `json:"destination"`
	Metadata    EdgeMetadata `json:"metadata"`
}

// Graph is an immutable adjacency structure: service -> ordered outgoing edges.
// The zero value is an empty graph. Build one with a Builder.
type Graph struct {
	edges map[string][]Edge
	order []string
}

// Dependencies returns the outgoing edges of service in insertion order.
// The returned slice must not be modified.
func (g *Graph) Dependencies(service string) []Edge {
	if g == nil {
		return nil
	}
	return g.edges[service]
}

// Has reports whether service has at least one outgoing association.
func (g *Graph) Has(service string) bool {
	if g == nil {
		return false
	}
	_, ok := g.edges[service]
	return ok
}

// Services returns every service that appears as a source or destination,
// in first-seen order.
func (g *Graph) Services() []string {
	if g == nil {
		return nil
	}
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Sources returns the services that own outgoing edges, sorted.
func (g *Graph) Sources() []string {
	if g == nil {
		return nil
	}
	out := make([]string, 0, len(g.edges))
	for s := range g.edges {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Len returns the total number of associations.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	n := 0
	for _, e := range g.edges {
		n += len(e)
	}
	return n
}

// Builder accumulates associations and produces a Graph.
type Builder struct {
	edges map[string][]Edge
	order []string
	seen  map[string]bool
	errs  []error
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		edges: make(map[string][]Edge),
		seen:  make(map[string]bool),
	}
}

// AddAssociation appends an edge source -> destination. Duplicate pairs and
// invalid metadata are reported by Build.
func (b *Builder) AddAssociation(source, destination string, meta EdgeMetadata) *Builder {
	if source == "" || destination == "" {
		b.errs = append(b.errs, fmt.Errorf("association %q -> %q: service names must not be empty", source, destination))
		return b
	}
	if err := meta.Validate(); err != nil {
		b.errs = append(b.errs, fmt.Errorf("association %q -> %q: %w", source, destination, err))
		return b
	}
	for _, e := range b.edges[source] {
		if e.Destination == destination {
			b.errs = append(b.errs, fmt.Errorf("association %q -> %q declared more than once", source, destination))
			return b
		}
	}

	b.track(source)
	b.track(destination)
	b.edges[source] = append(b.edges[source], Edge{Destination: destination, Metadata: meta})
	return b
}

func (b *Builder) track(service string) {
	if !b.seen[service] {
		b.seen[service] = true
		b.order = append(b.order, service)
	}
}

// Build returns the graph, or the first error recorded while adding associations.
func (b *Builder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	g := &Graph{
		edges: make(map[string][]Edge, len(b.edges)),
		order: make([]string, len(b.order)),
	}
	copy(g.order, b.order)
	for s, edges := range b.edges {
		cp := make([]Edge, len(edges))
		copy(cp, edges)
		g.edges[s] = cp
	}
	return g, nil
}
