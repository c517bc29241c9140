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


package decision

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	"github.com/kcp-dev/placement-optimizer/pkg/placement/scheduler"
)

func TestParseOutputFormat(t *testing.T) {
	tests := map[string]struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		"json":       {in: "json", want: OutputFormatJSON},
		"upper yaml": {in: "YAML", want: OutputFormatYAML},
		"table":      {in: "table", want: OutputFormatTable},
		"unknown":    {in: "xml", wantErr: true},
		"empty":      {in: "", wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseOutputFormat(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func sampleDecision() *scheduler.Decision {
	return &scheduler.Decision{
		Service: "s1",
		Node:    "worker-2",
		Score:   0.1,
		Candidates: []scheduler.CandidateScore{
			{
				Node:       "worker-1",
				Raw:        scheduler.CostVector{Latency: 0.0105, Traffic: 24255131, Activation: 2.38},
				Normalized: scheduler.CostVector{Latency: 1, Traffic: 1, Activation: 1},
				Score:      1,
			},
			{
				Node:       "worker-2",
				Raw:        scheduler.CostVector{Latency: 0.0017},
				Normalized: scheduler.CostVector{},
				Score:      0.1,
			},
		},
		Warnings: []scheduler.MissingMetricError{{Dimension: scheduler.DimensionLatency, Reason: "no observed latency"}},
	}
}

func TestFormatDecision(t *testing.T) {
	f := NewFormatter()
	d := sampleDecision()

	t.Run("json round trips", func(t *testing.T) {
		out, err := f.FormatDecision(d, OutputFormatJSON)
		require.NoError(t, err)
		var got scheduler.Decision
		require.NoError(t, json.Unmarshal(out, &got))
		assert.Equal(t, "worker-2", got.Node)
		assert.Len(t, got.Candidates, 2)
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := f.FormatDecision(d, OutputFormatYAML)
		require.NoError(t, err)
		var got scheduler.Decision
		require.NoError(t, yaml.Unmarshal(out, &got))
		assert.Equal(t, *d, got)
	})

	t.Run("table marks the selected node", func(t *testing.T) {
		out, err := f.FormatDecision(d, OutputFormatTable)
		require.NoError(t, err)
		text := string(out)
		assert.Contains(t, text, "Selected: worker-2 (score 0.1000)")
		assert.Contains(t, text, "NODE")
		assert.Contains(t, text, "worker-2 *")
		assert.NotContains(t, text, "worker-1 *")
		assert.Contains(t, text, "missing latency signal: no observed latency")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := f.FormatDecision(d, "xml")
		assert.Error(t, err)
	})
}

func TestFormatRecords(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := &Formatter{now: func() time.Time { return now }}
	records := []*Record{
		{ID: "0f8fad5b-d9cb-469f-a165-70867728950e", Service: "s1", Node: "worker-2", Score: 0.1, Status: StatusApplied, Timestamp: now.Add(-90 * time.Second)},
		{ID: "7c9e6679-7425-40de-944b-e07fc1f90ae7", Service: "s4", Status: StatusFailed, Error: "boom", Timestamp: now},
	}

	out, err := f.FormatRecords(records, OutputFormatTable)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"ID", "SERVICE", "NODE", "SCORE", "STATUS", "AGE"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"0f8fad5b", "s1", "worker-2", "0.1000", "Applied", "1m30s"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"7c9e6679", "s4", "<none>", "0.0000", "Failed", "0s"}, strings.Fields(lines[2]))

	out, err = f.FormatRecords(nil, OutputFormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))

	out, err = f.FormatRecords(records, OutputFormatYAML)
	require.NoError(t, err)
	assert.Contains(t, string(out), "status: Failed")
}
