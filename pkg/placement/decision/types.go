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


// Package decision keeps a bounded history of placement decisions and
// renders decisions for humans and machines.
package decision

import (
	"time"

	"github.com/kcp-dev/placement-optimizer/pkg/placement/scheduler"
)

// Status is the outcome of a recorded decision.
type Status string

const (
	// StatusSelected means a node was chosen but the workload was not moved.
	StatusSelected Status = "Selected"
	// StatusApplied means the workload was moved to the chosen node.
	StatusApplied Status = "Applied"
	// StatusFailed means no node could be chosen.
	StatusFailed Status = "Failed"
)

// Record is a decision as kept in the history.
type Record struct {
	ID        string    `json:"id"`
	Service   string    `json:"service"`
	Node      string    `json:"node,omitempty"`
	Score     float64   `json:"score"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Candidates []scheduler.CandidateScore     `json:"candidates,omitempty"`
	Warnings   []scheduler.MissingMetricError `json:"warnings,omitempty"`
}

// DeepCopy returns an independent copy of r.
func (r *Record) DeepCopy() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Candidates != nil {
		out.Candidates = make([]scheduler.CandidateScore, len(r.Candidates))
		for i, c := range r.Candidates {
			out.Candidates[i] = c
			if c.Colocation != nil {
				out.Candidates[i].Colocation = make(map[string]float64, len(c.Colocation))
				for k, v := range c.Colocation {
					out.Candidates[i].Colocation[k] = v
				}
			}
		}
	}
	if r.Warnings != nil {
		out.Warnings = append([]scheduler.MissingMetricError(nil), r.Warnings...)
	}
	return &out
}

// Filter selects records in List. Zero fields match everything.
type Filter struct {
	Service string
	Node    string
	Status  Status

	// Since drops records older than the given time.
	Since time.Time

	// Limit caps the number of results (0 = no limit).
	Limit int
}

func (f Filter) matches(r *Record) bool {
	if f.Service != "" && r.Service != f.Service {
		return false
	}
	if f.Node != "" && r.Node != f.Node {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// RetentionPolicy bounds the history.
type RetentionPolicy struct {
	// MaxAge is the maximum age of records kept by Prune (0 = no limit).
	MaxAge time.Duration

	// MaxRecords is the maximum number of records kept (0 = no limit).
	// It is enforced on every insert.
	MaxRecords int
}

// DefaultRetentionPolicy keeps a day of history, at most 1000 records.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		MaxAge:     24 * time.Hour,
		MaxRecords: 1000,
	}
}
