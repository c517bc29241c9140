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
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcp-dev/placement-optimizer/pkg/placement/scheduler"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Step(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestRecorder(policy RetentionPolicy) (*Recorder, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRecorder(policy)
	r.now = clock.Now
	return r, clock
}

func testDecision(service, node string) *scheduler.Decision {
	return &scheduler.Decision{
		Service: service,
		Node:    node,
		Score:   0.25,
		Candidates: []scheduler.CandidateScore{
			{Node: node, Score: 0.25, Colocation: map[string]float64{"s2": 1}},
		},
		Warnings: []scheduler.MissingMetricError{{Dimension: scheduler.DimensionLatency, Reason: "none"}},
	}
}

func TestRecorderRecordAndGet(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRecorder(DefaultRetentionPolicy())

	_, err := r.Record(ctx, nil, false)
	require.Error(t, err)

	d := testDecision("s1", "worker-1")
	rec, err := r.Record(ctx, d, false)
	require.NoError(t, err)
	_, err = uuid.Parse(rec.ID)
	require.NoError(t, err, "IDs are UUIDs")
	assert.Equal(t, StatusSelected, rec.Status)
	assert.Equal(t, "worker-1", rec.Node)
	assert.Equal(t, 0.25, rec.Score)
	assert.Len(t, rec.Warnings, 1)

	d.Candidates[0].Colocation["s2"] = 0
	got, err := r.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Candidates[0].Colocation["s2"], "records are isolated from the caller's decision")

	got.Node = "mutated"
	again, err := r.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "worker-1", again.Node, "returned records are copies")

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecorderStatuses(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRecorder(DefaultRetentionPolicy())

	applied, err := r.Record(ctx, testDecision("s1", "worker-1"), true)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, applied.Status)

	failed := r.RecordFailure(ctx, "s4", &scheduler.NoCandidateError{Service: "s4"})
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "no candidate nodes")
	assert.Empty(t, failed.Node)

	selected, err := r.Record(ctx, testDecision("s5", "worker-2"), false)
	require.NoError(t, err)
	require.NoError(t, r.MarkApplied(selected.ID))
	got, err := r.Get(selected.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, got.Status)

	assert.Error(t, r.MarkApplied(failed.ID))
	assert.ErrorIs(t, r.MarkApplied("missing"), ErrNotFound)
}

func TestRecorderList(t *testing.T) {
	ctx := context.Background()
	r, clock := newTestRecorder(DefaultRetentionPolicy())

	start := clock.Now()
	for i, d := range []*scheduler.Decision{
		testDecision("s1", "worker-1"),
		testDecision("s4", "worker-2"),
		testDecision("s1", "worker-2"),
		testDecision("s1", "worker-3"),
	} {
		_, err := r.Record(ctx, d, i == 3)
		require.NoError(t, err)
		clock.Step(time.Minute)
	}
	r.RecordFailure(ctx, "s5", errors.New("boom"))

	nodes := func(records []*Record) []string {
		var out []string
		for _, rec := range records {
			out = append(out, fmt.Sprintf("%s/%s", rec.Service, rec.Node))
		}
		return out
	}

	tests := map[string]struct {
		filter Filter
		want   []string
	}{
		"everything newest first": {
			want: []string{"s5/", "s1/worker-3", "s1/worker-2", "s4/worker-2", "s1/worker-1"},
		},
		"by service": {
			filter: Filter{Service: "s1"},
			want:   []string{"s1/worker-3", "s1/worker-2", "s1/worker-1"},
		},
		"by node": {
			filter: Filter{Node: "worker-2"},
			want:   []string{"s1/worker-2", "s4/worker-2"},
		},
		"by status": {
			filter: Filter{Status: StatusApplied},
			want:   []string{"s1/worker-3"},
		},
		"since": {
			filter: Filter{Since: start.Add(2 * time.Minute)},
			want:   []string{"s5/", "s1/worker-3", "s1/worker-2"},
		},
		"limit": {
			filter: Filter{Service: "s1", Limit: 2},
			want:   []string{"s1/worker-3", "s1/worker-2"},
		},
		"no match": {
			filter: Filter{Service: "s9"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, nodes(r.List(tc.filter)))
		})
	}

	assert.Equal(t, nodes(r.List(Filter{Service: "s1"})), nodes(r.History("s1")))

	latest, ok := r.Latest("s1")
	require.True(t, ok)
	assert.Equal(t, "worker-3", latest.Node)
	_, ok = r.Latest("s9")
	assert.False(t, ok)
}

func TestRecorderRetention(t *testing.T) {
	ctx := context.Background()

	t.Run("max records enforced on insert", func(t *testing.T) {
		r, _ := newTestRecorder(RetentionPolicy{MaxRecords: 2})
		first, err := r.Record(ctx, testDecision("s1", "worker-1"), false)
		require.NoError(t, err)
		_, err = r.Record(ctx, testDecision("s1", "worker-2"), false)
		require.NoError(t, err)
		_, err = r.Record(ctx, testDecision("s1", "worker-3"), false)
		require.NoError(t, err)

		assert.Equal(t, 2, r.Len())
		_, err = r.Get(first.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("prune by age", func(t *testing.T) {
		r, clock := newTestRecorder(RetentionPolicy{MaxAge: time.Hour})
		for i := 0; i < 3; i++ {
			_, err := r.Record(ctx, testDecision("s1", "worker-1"), false)
			require.NoError(t, err)
			clock.Step(30 * time.Minute)
		}
		// records at +0, +30m, +60m; now is +90m.
		assert.Equal(t, 1, r.Prune(ctx, clock.Now()))
		assert.Equal(t, 2, r.Len())
		assert.Equal(t, 0, r.Prune(ctx, clock.Now()))
	})

	t.Run("prune without max age keeps everything", func(t *testing.T) {
		r, clock := newTestRecorder(RetentionPolicy{})
		_, err := r.Record(ctx, testDecision("s1", "worker-1"), false)
		require.NoError(t, err)
		assert.Equal(t, 0, r.Prune(ctx, clock.Now().Add(1000*time.Hour)))
		assert.Equal(t, 1, r.Len())
	})
}

func TestRecorderConcurrentUse(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(RetentionPolicy{MaxRecords: 50})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _ = r.Record(ctx, testDecision(fmt.Sprintf("s%d", i), "worker-1"), false)
				_ = r.List(Filter{Limit: 5})
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len())
}
