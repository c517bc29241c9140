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

// Package config loads workload definitions: the nodes, services, association
// graph and weights the optimizer scores placements with.
package config

// File is the on-disk document holding one or more workload definitions,
// keyed by name.
type File struct {
	Workloads map[string]WorkloadDefinition `json:"workloads"`
}

// WorkloadDefinition describes one application made of interdependent services.
type WorkloadDefinition struct {
	// Version is informational.
	Version string `json:"version,omitempty"`

	// Nodes is the default candidate list, in preference order. When empty
	// the nodes of the cluster are the candidates.
	Nodes []string `json:"nodes,omitempty"`

	// Services names every workload that may be placed.
	Services []string `json:"services"`

	// Dependencies declares, per service, the services it calls. Every
	// declared dependency must be backed by an association.
	Dependencies map[string][]string `json:"dependencies,omitempty"`

	// Associations carries the cost metadata for each directed pair.
	Associations []Association `json:"associations"`

	// Entrypoints are the services the control loop keeps placing.
	Entrypoints []string `json:"entrypoints,omitempty"`

	Weights *Weights `json:"weights"`

	// IdleNodePenalty is the activation cost of a node without pods.
	IdleNodePenalty *float64 `json:"idleNodePenalty"`
}

// Association is a directed edge with its cost metadata. Unset metadata is
// rejected rather than defaulted.
type Association struct {
	Source           string   `json:"source"`
	Destination      string   `json:"destination"`
	TrafficCost      *float64 `json:"trafficCost"`
	ColocatedLatency *float64 `json:"colocatedLatency"`
	RemoteLatency    *float64 `json:"remoteLatency"`
}

// Weights are the scoring weights. All three are required.
type Weights struct {
	Latency *float64 `json:"latency"`
	Traffic *float64 `json:"traffic"`
	Energy  *float64 `json:"energy"`
}
