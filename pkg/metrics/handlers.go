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


package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"
)

// HTTPHandlers serves the registry over HTTP.
type HTTPHandlers struct {
	registry *MetricsRegistry
}

// NewHTTPHandlers creates handlers for registry.
func NewHTTPHandlers(registry *MetricsRegistry) *HTTPHandlers {
	return &HTTPHandlers{registry: registry}
}

// RegisterHandlers registers the metrics endpoints with mux:
//
//	/metrics             Prometheus exposition format
//	/metrics/collectors  JSON summary of the registered collectors
//	/healthz             liveness
func (h *HTTPHandlers) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", h.metricsHandler())
	mux.HandleFunc("/metrics/collectors", h.collectorsHandler)
	mux.HandleFunc("/healthz", h.healthHandler)

	klog.V(2).Info("Registered metrics HTTP handlers")
}

func (h *HTTPHandlers) metricsHandler() http.Handler {
	return promhttp.HandlerFor(
		h.registry.GetPrometheusRegistry(),
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Registry:          h.registry.GetPrometheusRegistry(),
		},
	)
}

type collectorsResponse struct {
	Timestamp  int64    `json:"timestamp"`
	Enabled    bool     `json:"enabled"`
	Collectors []string `json:"collectors"`
	Families   int      `json:"families"`
}

func (h *HTTPHandlers) collectorsHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.CollectAll(); err != nil {
		klog.ErrorS(err, "Failed to collect metrics")
		http.Error(w, "failed to collect metrics", http.StatusInternalServerError)
		return
	}

	families, err := h.registry.GetPrometheusRegistry().Gather()
	if err != nil {
		klog.ErrorS(err, "Failed to gather metrics")
		http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := collectorsResponse{
		Timestamp:  time.Now().Unix(),
		Enabled:    h.registry.IsEnabled(),
		Collectors: h.registry.CollectorNames(),
		Families:   len(families),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		klog.ErrorS(err, "Failed to encode collectors response")
	}
}

func (h *HTTPHandlers) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}
