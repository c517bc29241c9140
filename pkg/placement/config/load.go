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

package config

import (
	"fmt"
	"os"
	"sort"

	"sigs.k8s.io/yaml"

	"github.com/kcp-dev/placement-optimizer/pkg/placement/graph"
	"github.com/kcp-dev/placement-optimizer/pkg/placement/scheduler"
)

// LoadFile reads and validates a YAML or JSON workload definition file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workload definitions from %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates workload definitions. Unknown fields are
// rejected. Validation failures are returned as a *scheduler.ConfigError.
func Parse(data []byte) (*File, error) {
	f := &File{}
	if err := yaml.UnmarshalStrict(data, f); err != nil {
		return nil, &scheduler.ConfigError{Reason: "cannot be decoded", Err: err}
	}
	if errs := ValidateFile(f); len(errs) > 0 {
		return nil, &scheduler.ConfigError{Err: errs.ToAggregate()}
	}
	return f, nil
}

// Names returns the workload names in the file, sorted.
func (f *File) Names() []string {
	out := make([]string, 0, len(f.Workloads))
	for n := range f.Workloads {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Get returns the named workload definition.
func (f *File) Get(name string) (*WorkloadDefinition, error) {
	def, ok := f.Workloads[name]
	if !ok {
		return nil, &scheduler.ConfigError{Field: "workloads", Reason: fmt.Sprintf("has no definition named %q", name)}
	}
	return &def, nil
}

// Graph builds the association graph. Associations keep their file order.
func (d *WorkloadDefinition) Graph() (*graph.Graph, error) {
	b := graph.NewBuilder()
	for i, a := range d.Associations {
		if a.TrafficCost == nil || a.ColocatedLatency == nil || a.RemoteLatency == nil {
			return nil, &scheduler.ConfigError{
				Service: a.Source,
				Field:   fmt.Sprintf("associations[%d]", i),
				Reason:  "is missing cost metadata",
			}
		}
		b.AddAssociation(a.Source, a.Destination, graph.EdgeMetadata{
			TrafficCost:      *a.TrafficCost,
			ColocatedLatency: *a.ColocatedLatency,
			RemoteLatency:    *a.RemoteLatency,
		})
	}
	g, err := b.Build()
	if err != nil {
		return nil, &scheduler.ConfigError{Field: "associations", Err: err}
	}
	return g, nil
}

// SchedulerConfig returns the scoring weights. Missing values are an error.
func (d *WorkloadDefinition) SchedulerConfig() (scheduler.Config, error) {
	if d.Weights == nil || d.Weights.Latency == nil || d.Weights.Traffic == nil || d.Weights.Energy == nil {
		return scheduler.Config{}, &scheduler.ConfigError{Field: "weights", Reason: "latency, traffic and energy weights are required"}
	}
	if d.IdleNodePenalty == nil {
		return scheduler.Config{}, &scheduler.ConfigError{Field: "idleNodePenalty", Reason: "is required"}
	}
	return scheduler.Config{
		LatencyWeight:   *d.Weights.Latency,
		TrafficWeight:   *d.Weights.Traffic,
		EnergyWeight:    *d.Weights.Energy,
		IdleNodePenalty: *d.IdleNodePenalty,
	}, nil
}

// Engine builds the immutable scoring engine for this definition.
func (d *WorkloadDefinition) Engine() (*scheduler.Engine, error) {
	cfg, err := d.SchedulerConfig()
	if err != nil {
		return nil, err
	}
	g, err := d.Graph()
	if err != nil {
		return nil, err
	}
	return scheduler.NewEngine(cfg, g)
}

// Candidates returns a copy of the configured node list.
func (d *WorkloadDefinition) Candidates() []string {
	return append([]string(nil), d.Nodes...)
}
