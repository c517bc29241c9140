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

package graph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	tests := map[string]struct {
		build     func(b *Builder)
		wantErr   string
		wantLen   int
		wantOrder []string
	}{
		"single association": {
			build: func(b *Builder) {
				b.AddAssociation("svc-a", "svc-b", EdgeMetadata{TrafficCost: 10, ColocatedLatency: 1, RemoteLatency: 5})
			},
			wantLen:   1,
			wantOrder: []string{"svc-a", "svc-b"},
		},
		"self loop": {
			build: func(b *Builder) {
				b.AddAssociation("s3", "s3", EdgeMetadata{ColocatedLatency: 0.877, RemoteLatency: 0.877})
			},
			wantLen:   1,
			wantOrder: []string{"s3"},
		},
		"fan out keeps insertion order": {
			build: func(b *Builder) {
				b.AddAssociation("gw", "b", EdgeMetadata{}).
					AddAssociation("gw", "a", EdgeMetadata{}).
					AddAssociation("a", "c", EdgeMetadata{})
			},
			wantLen:   3,
			wantOrder: []string{"gw", "b", "a", "c"},
		},
		"duplicate pair": {
			build: func(b *Builder) {
				b.AddAssociation("a", "b", EdgeMetadata{}).AddAssociation("a", "b", EdgeMetadata{TrafficCost: 1})
			},
			wantErr: "declared more than once",
		},
		"negative traffic": {
			build: func(b *Builder) {
				b.AddAssociation("a", "b", EdgeMetadata{TrafficCost: -1})
			},
			wantErr: "trafficCost must not be negative",
		},
		"nan latency": {
			build: func(b *Builder) {
				b.AddAssociation("a", "b", EdgeMetadata{RemoteLatency: math.NaN()})
			},
			wantErr: "remoteLatency must be a finite number",
		},
		"empty name": {
			build: func(b *Builder) {
				b.AddAssociation("", "b", EdgeMetadata{})
			},
			wantErr: "must not be empty",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			b := NewBuilder()
			tc.build(b)
			g, err := b.Build()
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantLen, g.Len())
			assert.Equal(t, tc.wantOrder, g.Services())
		})
	}
}

func TestGraphDependencies(t *testing.T) {
	g, err := NewBuilder().
		AddAssociation("gw", "b", EdgeMetadata{TrafficCost: 2}).
		AddAssociation("gw", "a", EdgeMetadata{TrafficCost: 1}).
		Build()
	require.NoError(t, err)

	deps := g.Dependencies("gw")
	require.Len(t, deps, 2)
	assert.Equal(t, "b", deps[0].Destination)
	assert.Equal(t, "a", deps[1].Destination)

	assert.True(t, g.Has("gw"))
	assert.False(t, g.Has("a"), "destinations without outgoing edges are not sources")
	assert.Empty(t, g.Dependencies("unknown"))
	assert.Equal(t, []string{"gw"}, g.Sources())
}

func TestNilGraph(t *testing.T) {
	var g *Graph
	assert.Empty(t, g.Dependencies("x"))
	assert.False(t, g.Has("x"))
	assert.Zero(t, g.Len())
	assert.Empty(t, g.Services())
}

func TestEdgeMetadataValidateReportsFirstField(t *testing.T) {
	tests := map[string]struct {
		meta    EdgeMetadata
		wantErr string
	}{
		"all invalid": {
			meta:    EdgeMetadata{TrafficCost: -1, ColocatedLatency: math.NaN(), RemoteLatency: math.Inf(1)},
			wantErr: "trafficCost must not be negative, got -1",
		},
		"latencies invalid": {
			meta:    EdgeMetadata{ColocatedLatency: -2, RemoteLatency: math.NaN()},
			wantErr: "colocatedLatency must not be negative, got -2",
		},
		"valid": {
			meta: EdgeMetadata{TrafficCost: 1, ColocatedLatency: 1, RemoteLatency: 2},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 20; i++ {
				err := tc.meta.Validate()
				if tc.wantErr == "" {
					require.NoError(t, err)
					continue
				}
				require.EqualError(t, err, tc.wantErr)
			}
		})
	}
}
