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
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingChecker struct{}

func (blockingChecker) Name() string { return "blocking" }

func (blockingChecker) Check(ctx context.Context) Status {
	<-ctx.Done()
	return Unhealthy(ctx.Err().Error())
}

func ok(name string) Checker {
	return NewFuncChecker(name, func(context.Context) error { return nil })
}

func failing(name string) Checker {
	return NewFuncChecker(name, func(context.Context) error { return errors.New("boom") })
}

func TestAggregatorCheckAll(t *testing.T) {
	tests := map[string]struct {
		checkers    []Checker
		wantHealthy bool
		wantCount   int
		wantMessage string
	}{
		"no checkers": {
			wantHealthy: true,
			wantMessage: "No components registered",
		},
		"all healthy": {
			checkers:    []Checker{ok("a"), ok("b")},
			wantHealthy: true,
			wantCount:   2,
			wantMessage: "All 2 components are healthy",
		},
		"one failing": {
			checkers:    []Checker{ok("a"), failing("b")},
			wantCount:   1,
			wantMessage: "1/2 components healthy (unhealthy: [b])",
		},
		"all failing": {
			checkers:    []Checker{failing("a")},
			wantMessage: "All 1 components are unhealthy",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			a := NewAggregator(0)
			for _, c := range tc.checkers {
				a.AddChecker(c)
			}

			status := a.CheckAll(context.Background())
			assert.Equal(t, tc.wantHealthy, status.Healthy)
			assert.Equal(t, tc.wantCount, status.HealthyCount)
			assert.Equal(t, len(tc.checkers), status.TotalCount)
			assert.Equal(t, tc.wantMessage, status.Message)
		})
	}
}

func TestAggregatorTimeout(t *testing.T) {
	a := NewAggregator(10 * time.Millisecond)
	a.AddChecker(blockingChecker{})
	a.AddChecker(ok("fast"))

	status := a.CheckAll(context.Background())
	assert.False(t, status.Healthy)
	assert.True(t, status.Components["fast"].Healthy)
	assert.False(t, status.Components["blocking"].Healthy)
}

func TestAggregatorCheckComponent(t *testing.T) {
	a := NewAggregator(time.Second)
	a.AddChecker(failing("provider"))

	status, err := a.CheckComponent(context.Background(), "provider")
	require.NoError(t, err)
	assert.False(t, status.Healthy)
	assert.Equal(t, "boom", status.Message)

	a.RemoveChecker("provider")
	_, err = a.CheckComponent(context.Background(), "provider")
	assert.Error(t, err)
}

func TestAggregatorServeHTTP(t *testing.T) {
	tests := map[string]struct {
		checker  Checker
		wantCode int
	}{
		"healthy":   {checker: ok("controller"), wantCode: http.StatusOK},
		"unhealthy": {checker: failing("controller"), wantCode: http.StatusServiceUnavailable},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			a := NewAggregator(time.Second)
			a.AddChecker(tc.checker)

			rec := httptest.NewRecorder()
			a.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var status SystemStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
			assert.Contains(t, status.Components, "controller")
		})
	}
}

func TestStatusString(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s := Status{Healthy: true, Message: "ok", Timestamp: ts}
	assert.Equal(t, "[HEALTHY] ok (checked at 2024-01-02T03:04:05Z)", s.String())

	sys := SystemStatus{Message: "down", Timestamp: ts, HealthyCount: 0, TotalCount: 1}
	assert.Equal(t, "[UNHEALTHY] down (0/1 components healthy, checked at 2024-01-02T03:04:05Z)", sys.String())
}
