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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/kcp-dev/placement-optimizer/pkg/placement/scheduler"
	"github.com/kcp-dev/placement-optimizer/pkg/placement/topology"
)

func TestLoadFile(t *testing.T) {
	f, err := LoadFile("testdata/demo.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"demo"}, f.Names())

	def, err := f.Get("demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n2", "n3"}, def.Candidates())

	cfg, err := def.SchedulerConfig()
	require.NoError(t, err)
	assert.Equal(t, scheduler.Config{LatencyWeight: 0.4, TrafficWeight: 0.2, EnergyWeight: 0.4, IdleNodePenalty: 2.0}, cfg)

	engine, err := def.Engine()
	require.NoError(t, err)

	d, err := engine.Place("svc_a", def.Candidates(), scheduler.State{
		Placement: topology.PlacementMap{"svc_b": {"n1": {"p1"}, "n2": {"p2"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "n1", d.Node)

	_, err = f.Get("missing")
	var ce *scheduler.ConfigError
	assert.True(t, errors.As(err, &ce))
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("testdata/does-not-exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read workload definitions")
}

func TestParseErrors(t *testing.T) {
	tests := map[string]struct {
		doc     string
		wantErr []string
	}{
		"missing weight": {
			doc: `
workloads:
  w:
    nodes: [n1]
    services: [a, b]
    associations:
      - {source: a, destination: b, trafficCost: 1, colocatedLatency: 1, remoteLatency: 2}
    weights: {latency: 0.5, energy: 0.5}
    idleNodePenalty: 1
`,
			wantErr: []string{"workloads[w].weights.traffic: Required value"},
		},
		"dependency without metadata": {
			doc: `
workloads:
  w:
    nodes: [n1]
    services: [a, b]
    dependencies:
      a: [b]
    associations: []
    weights: {latency: 0.5, traffic: 0.2, energy: 0.3}
    idleNodePenalty: 1
`,
			wantErr: []string{"dependency a -> b has no association metadata"},
		},
		"association metadata incomplete": {
			doc: `
workloads:
  w:
    nodes: [n1]
    services: [a, b]
    associations:
      - {source: a, destination: b, trafficCost: 1}
    weights: {latency: 0.5, traffic: 0.2, energy: 0.3}
    idleNodePenalty: 1
`,
			wantErr: []string{
				"workloads[w].associations[0].colocatedLatency: Required value",
				"workloads[w].associations[0].remoteLatency: Required value",
			},
		},
		"negative traffic and unknown service": {
			doc: `
workloads:
  w:
    nodes: [n1]
    services: [a]
    associations:
      - {source: a, destination: z, trafficCost: -1, colocatedLatency: 1, remoteLatency: 2}
    weights: {latency: 0.5, traffic: 0.2, energy: 0.3}
    idleNodePenalty: 1
`,
			wantErr: []string{
				"workloads[w].associations[0].destination: Not found",
				"must not be negative",
			},
		},
		"duplicate node and unknown entrypoint": {
			doc: `
workloads:
  w:
    nodes: [n1, n1]
    services: [a]
    associations: []
    entrypoints: [b]
    weights: {latency: 0.5, traffic: 0.2, energy: 0.3}
    idleNodePenalty: 1
`,
			wantErr: []string{
				"workloads[w].nodes[1]: Duplicate value",
				"workloads[w].entrypoints[0]: Not found",
			},
		},
		"missing penalty": {
			doc: `
workloads:
  w:
    nodes: [n1]
    services: [a]
    associations: []
    weights: {latency: 0.5, traffic: 0.2, energy: 0.3}
`,
			wantErr: []string{"workloads[w].idleNodePenalty: Required value"},
		},
		"unknown field": {
			doc: `
workloads:
  w:
    nodes: [n1]
    alpha: 0.5
`,
			wantErr: []string{"cannot be decoded"},
		},
		"empty document": {
			doc:     `workloads: {}`,
			wantErr: []string{"workloads: Required value"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f, err := Parse([]byte(tc.doc))
			require.Error(t, err)
			assert.Nil(t, f)

			var ce *scheduler.ConfigError
			require.True(t, errors.As(err, &ce), "expected a ConfigError, got %T", err)
			for _, want := range tc.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestDefinitionAccessorsRejectMissingValues(t *testing.T) {
	def := &WorkloadDefinition{
		Associations: []Association{{Source: "a", Destination: "b", TrafficCost: ptr.To(1.0)}},
	}

	_, err := def.SchedulerConfig()
	var ce *scheduler.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "weights", ce.Field)

	def.Weights = &Weights{Latency: ptr.To(1.0), Traffic: ptr.To(0.0), Energy: ptr.To(0.0)}
	_, err = def.SchedulerConfig()
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "idleNodePenalty", ce.Field)

	_, err = def.Graph()
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "a", ce.Service)
}

func TestParseWithoutNodes(t *testing.T) {
	f, err := Parse([]byte(`
workloads:
  w:
    services: [a, b]
    associations:
      - {source: a, destination: b, trafficCost: 1, colocatedLatency: 1, remoteLatency: 2}
    weights: {latency: 0.5, traffic: 0.2, energy: 0.3}
    idleNodePenalty: 1
`))
	require.NoError(t, err)

	def, err := f.Get("w")
	require.NoError(t, err)
	assert.Empty(t, def.Candidates())

	_, err = def.Engine()
	require.NoError(t, err)
}

func TestBuiltin(t *testing.T) {
	f := Builtin()
	require.Empty(t, ValidateFile(f))

	def, err := f.Get(SmartHouseWorkload)
	require.NoError(t, err)

	g, err := def.Graph()
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())
	assert.Len(t, g.Dependencies("s3-sensorcruncher"), 1)

	engine, err := def.Engine()
	require.NoError(t, err)

	// The model depot lives on worker-2, so the inference engine follows it.
	d, err := engine.Place("s1-inference", def.Candidates(), scheduler.State{
		Placement: topology.PlacementMap{
			"s2-modeldepot":     {"worker-2": {"s2-0"}},
			"s3-sensorcruncher": {"worker-1": {"s3-0"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "worker-2", d.Node)
}
