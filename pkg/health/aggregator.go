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


package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// Aggregator runs registered checkers in parallel and combines their results.
type Aggregator struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	timeout  time.Duration
}

// NewAggregator creates an aggregator. A non-positive timeout selects
// DefaultCheckTimeout.
func NewAggregator(timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return &Aggregator{
		checkers: make(map[string]Checker),
		timeout:  timeout,
	}
}

// AddChecker registers checker, replacing any checker of the same name.
func (a *Aggregator) AddChecker(checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers[checker.Name()] = checker
}

// RemoveChecker unregisters the checker called name.
func (a *Aggregator) RemoveChecker(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.checkers, name)
}

// CheckAll checks every component. The system is healthy when all
// components are. Components that do not answer before ctx ends are
// reported unhealthy.
func (a *Aggregator) CheckAll(ctx context.Context) SystemStatus {
	a.mu.RLock()
	checkers := make(map[string]Checker, len(a.checkers))
	for name, checker := range a.checkers {
		checkers[name] = checker
	}
	a.mu.RUnlock()

	type result struct {
		name   string
		status Status
	}
	results := make(chan result, len(checkers))
	for name, checker := range checkers {
		go func(name string, checker Checker) {
			checkCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			results <- result{name: name, status: checker.Check(checkCtx)}
		}(name, checker)
	}

	components := make(map[string]Status, len(checkers))
	healthy := 0
collect:
	for range checkers {
		select {
		case r := <-results:
			components[r.name] = r.status
			if r.status.Healthy {
				healthy++
			}
		case <-ctx.Done():
			break collect
		}
	}
	for name := range checkers {
		if _, ok := components[name]; !ok {
			components[name] = Unhealthy("health check timed out")
		}
	}

	return SystemStatus{
		Healthy:      healthy == len(checkers),
		Message:      summarize(healthy, components),
		Components:   components,
		Timestamp:    time.Now(),
		HealthyCount: healthy,
		TotalCount:   len(checkers),
	}
}

// CheckComponent checks the single component called name.
func (a *Aggregator) CheckComponent(ctx context.Context, name string) (Status, error) {
	a.mu.RLock()
	checker, ok := a.checkers[name]
	a.mu.RUnlock()
	if !ok {
		return Status{}, fmt.Errorf("health checker %q not found", name)
	}

	checkCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return checker.Check(checkCtx), nil
}

func summarize(healthy int, components map[string]Status) string {
	total := len(components)
	switch {
	case total == 0:
		return "No components registered"
	case healthy == total:
		return fmt.Sprintf("All %d components are healthy", total)
	case healthy == 0:
		return fmt.Sprintf("All %d components are unhealthy", total)
	}

	var unhealthy []string
	for name, status := range components {
		if !status.Healthy {
			unhealthy = append(unhealthy, name)
		}
	}
	sort.Strings(unhealthy)
	return fmt.Sprintf("%d/%d components healthy (unhealthy: %v)", healthy, total, unhealthy)
}

// ServeHTTP writes the system status as JSON. Unhealthy systems answer 503.
func (a *Aggregator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := a.CheckAll(r.Context())

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		klog.Background().Error(err, "failed to encode health status")
	}
}
