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


package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"k8s.io/klog/v2"

	"github.com/kcp-dev/placement-optimizer/pkg/health"
	"github.com/kcp-dev/placement-optimizer/pkg/metrics"
)

// MetricsServer serves the metrics registry and the readiness of the
// optimizer over HTTP until its context ends.
type MetricsServer struct {
	server   *http.Server
	registry *metrics.MetricsRegistry
}

// NewMetricsServer creates a metrics server listening on addr. Readiness is
// served on /readyz.
func NewMetricsServer(addr string, registry *metrics.MetricsRegistry, ready *health.Aggregator) *MetricsServer {
	mux := http.NewServeMux()
	metrics.NewHTTPHandlers(registry).RegisterHandlers(mux)
	mux.Handle("/readyz", ready)

	return &MetricsServer{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		registry: registry,
	}
}

// Start binds the listener and serves in the background. The server shuts
// down and the registry's collectors are closed when ctx is cancelled.
// It returns the address actually bound.
func (m *MetricsServer) Start(ctx context.Context) (string, error) {
	logger := klog.FromContext(ctx).WithName("metrics-server")

	ln, err := net.Listen("tcp", m.server.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", m.server.Addr, err)
	}

	go func() {
		logger.Info("serving metrics", "address", ln.Addr().String())
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down metrics server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := m.server.Shutdown(shutdownCtx); err != nil {
			logger.Error(err, "metrics server shutdown failed")
		}
		if err := m.registry.Close(); err != nil {
			logger.Error(err, "failed to close metric collectors")
		}
	}()

	return ln.Addr().String(), nil
}
