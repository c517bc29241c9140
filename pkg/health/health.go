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


// Package health aggregates component health checks into the readiness
// status of the optimizer.
package health

import (
	"context"
	"fmt"
	"time"
)

// Checker reports the health of one component.
type Checker interface {
	// Name returns the unique name of the component being checked.
	Name() string

	// Check returns the current status. ctx carries the check timeout.
	Check(ctx context.Context) Status
}

// Status is the health of a single component.
type Status struct {
	Healthy   bool                   `json:"healthy"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// String returns a human-readable representation of the status.
func (s Status) String() string {
	status := "UNHEALTHY"
	if s.Healthy {
		status = "HEALTHY"
	}
	return fmt.Sprintf("[%s] %s (checked at %s)", status, s.Message, s.Timestamp.Format(time.RFC3339))
}

// Healthy returns a healthy status with message.
func Healthy(message string) Status {
	return Status{Healthy: true, Message: message, Timestamp: time.Now()}
}

// Unhealthy returns an unhealthy status with message.
func Unhealthy(message string) Status {
	return Status{Healthy: false, Message: message, Timestamp: time.Now()}
}

// SystemStatus is the combined health of every registered component.
type SystemStatus struct {
	Healthy      bool              `json:"healthy"`
	Message      string            `json:"message"`
	Components   map[string]Status `json:"components"`
	Timestamp    time.Time         `json:"timestamp"`
	HealthyCount int               `json:"healthy_count"`
	TotalCount   int               `json:"total_count"`
}

// String returns a human-readable representation of the system status.
func (s SystemStatus) String() string {
	status := "UNHEALTHY"
	if s.Healthy {
		status = "HEALTHY"
	}
	return fmt.Sprintf("[%s] %s (%d/%d components healthy, checked at %s)",
		status, s.Message, s.HealthyCount, s.TotalCount, s.Timestamp.Format(time.RFC3339))
}

// DefaultCheckTimeout bounds a single component check.
const DefaultCheckTimeout = 5 * time.Second

// funcChecker adapts a function to the Checker interface.
type funcChecker struct {
	name  string
	check func(ctx context.Context) error
}

// NewFuncChecker returns a Checker that is healthy while check returns nil.
func NewFuncChecker(name string, check func(ctx context.Context) error) Checker {
	return &funcChecker{name: name, check: check}
}

func (f *funcChecker) Name() string {
	return f.name
}

func (f *funcChecker) Check(ctx context.Context) Status {
	if err := f.check(ctx); err != nil {
		return Unhealthy(err.Error())
	}
	return Healthy("ok")
}
