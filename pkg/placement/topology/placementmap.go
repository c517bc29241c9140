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

// Package topology models where the pods of each service currently run and
// derives colocation facts from that snapshot.
package topology

import (
	"fmt"
	"sort"
)

// PlacementMap maps service -> node -> ordered pod identifiers.
// A pod identifier appears under exactly one (service, node) pair.
type PlacementMap map[string]map[string][]string

// Add records pod as running on node for service.
func (pm PlacementMap) Add(service, node, pod string) {
	nodes, ok := pm[service]
	if !ok {
		nodes = make(map[string][]string)
		pm[service] = nodes
	}
	nodes[node] = append(nodes[node], pod)
}

// Ensure makes sure service has an entry, possibly empty.
func (pm PlacementMap) Ensure(service string) {
	if _, ok := pm[service]; !ok {
		pm[service] = make(map[string][]string)
	}
}

// PodCount returns the total number of pods of service across all nodes.
// A missing service counts as zero pods.
func (pm PlacementMap) PodCount(service string) int {
	total := 0
	for _, pods := range pm[service] {
		total += len(pods)
	}
	return total
}

// PodsOn returns the number of pods of service on node.
func (pm PlacementMap) PodsOn(service, node string) int {
	return len(pm[service][node])
}

// NodeHasPods reports whether node hosts a non-empty pod list for any service.
func (pm PlacementMap) NodeHasPods(node string) bool {
	for _, nodes := range pm {
		if len(nodes[node]) > 0 {
			return true
		}
	}
	return false
}

// Nodes returns every node hosting at least one pod, sorted.
func (pm PlacementMap) Nodes() []string {
	seen := map[string]struct{}{}
	for _, nodes := range pm {
		for node, pods := range nodes {
			if len(pods) > 0 {
				seen[node] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// NodesOf returns the nodes hosting pods of service, sorted.
func (pm PlacementMap) NodesOf(service string) []string {
	out := make([]string, 0, len(pm[service]))
	for node, pods := range pm[service] {
		if len(pods) > 0 {
			out = append(out, node)
		}
	}
	sort.Strings(out)
	return out
}

// DeepCopy returns an independent copy, so callers can hand snapshots to
// concurrent placement calls without aliasing.
func (pm PlacementMap) DeepCopy() PlacementMap {
	if pm == nil {
		return nil
	}
	out := make(PlacementMap, len(pm))
	for service, nodes := range pm {
		cp := make(map[string][]string, len(nodes))
		for node, pods := range nodes {
			cp[node] = append([]string(nil), pods...)
		}
		out[service] = cp
	}
	return out
}

// Validate checks that every pod identifier appears under exactly one
// (service, node) pair.
func (pm PlacementMap) Validate() error {
	type location struct{ service, node string }
	owners := map[string]location{}

	services := make([]string, 0, len(pm))
	for s := range pm {
		services = append(services, s)
	}
	sort.Strings(services)

	for _, service := range services {
		nodes := make([]string, 0, len(pm[service]))
		for n := range pm[service] {
			nodes = append(nodes, n)
		}
		sort.Strings(nodes)

		for _, node := range nodes {
			for _, pod := range pm[service][node] {
				if prev, ok := owners[pod]; ok {
					return fmt.Errorf("pod %q listed under %s/%s and %s/%s", pod, prev.service, prev.node, service, node)
				}
				owners[pod] = location{service: service, node: node}
			}
		}
	}
	return nil
}
