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
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/kcp-dev/placement-optimizer/pkg/placement/scheduler"
)

// ErrNotFound is returned by Get for unknown or pruned records.
var ErrNotFound = errors.New("decision record not found")

// Recorder is an in-memory, bounded history of placement decisions. It is
// safe for concurrent use.
type Recorder struct {
	mu      sync.RWMutex
	records map[string]*Record
	// order holds record IDs oldest first.
	order []string

	policy RetentionPolicy
	now    func() time.Time
}

// NewRecorder creates a recorder bounded by policy.
func NewRecorder(policy RetentionPolicy) *Recorder {
	return &Recorder{
		records: make(map[string]*Record),
		policy:  policy,
		now:     time.Now,
	}
}

// Record stores a successful decision and returns the stored record.
func (r *Recorder) Record(ctx context.Context, d *scheduler.Decision, applied bool) (*Record, error) {
	if d == nil {
		return nil, fmt.Errorf("decision cannot be nil")
	}

	status := StatusSelected
	if applied {
		status = StatusApplied
	}
	rec := &Record{
		Service:    d.Service,
		Node:       d.Node,
		Score:      d.Score,
		Status:     status,
		Candidates: d.Candidates,
		Warnings:   d.Warnings,
	}
	return r.add(ctx, rec), nil
}

// RecordFailure stores a decision that could not be made.
func (r *Recorder) RecordFailure(ctx context.Context, service string, err error) *Record {
	rec := &Record{
		Service: service,
		Status:  StatusFailed,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return r.add(ctx, rec)
}

func (r *Recorder) add(ctx context.Context, rec *Record) *Record {
	rec = rec.DeepCopy()
	rec.ID = uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	rec.Timestamp = r.now()
	r.records[rec.ID] = rec
	r.order = append(r.order, rec.ID)

	if limit := r.policy.MaxRecords; limit > 0 && len(r.order) > limit {
		r.dropOldestLocked(len(r.order) - limit)
	}

	klog.FromContext(ctx).V(4).Info("recorded placement decision",
		"id", rec.ID, "service", rec.Service, "node", rec.Node, "status", rec.Status)
	return rec.DeepCopy()
}

// MarkApplied flips a selected record to applied once the workload moved.
func (r *Recorder) MarkApplied(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if rec.Status == StatusFailed {
		return fmt.Errorf("decision %s failed and cannot be applied", id)
	}
	rec.Status = StatusApplied
	return nil
}

// Get returns the record with the given ID.
func (r *Recorder) Get(id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.DeepCopy(), nil
}

// Latest returns the most recent record of service.
func (r *Recorder) Latest(service string) (*Record, bool) {
	history := r.List(Filter{Service: service, Limit: 1})
	if len(history) == 0 {
		return nil, false
	}
	return history[0], true
}

// History returns the records of service, newest first.
func (r *Recorder) History(service string) []*Record {
	return r.List(Filter{Service: service})
}

// List returns the records matching filter, newest first.
func (r *Recorder) List(filter Filter) []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Record
	for i := len(r.order) - 1; i >= 0; i-- {
		rec := r.records[r.order[i]]
		if !filter.matches(rec) {
			continue
		}
		out = append(out, rec.DeepCopy())
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out
}

// Len returns the number of records held.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Prune drops records older than MaxAge relative to now and returns how many
// were removed.
func (r *Recorder) Prune(ctx context.Context, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.policy.MaxAge <= 0 {
		return 0
	}
	threshold := now.Add(-r.policy.MaxAge)

	expired := 0
	for _, id := range r.order {
		if !r.records[id].Timestamp.Before(threshold) {
			break
		}
		expired++
	}
	r.dropOldestLocked(expired)

	if expired > 0 {
		klog.FromContext(ctx).V(2).Info("pruned decision history", "pruned", expired, "remaining", len(r.order))
	}
	return expired
}

func (r *Recorder) dropOldestLocked(n int) {
	for _, id := range r.order[:n] {
		delete(r.records, id)
	}
	r.order = append([]string(nil), r.order[n:]...)
}
