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

package telemetry

import (
	"fmt"
)

// Istio and node-exporter queries. Latencies are reported in milliseconds.
const (
	nodeLatencyQuery = `histogram_quantile(0.5, sum(irate(istio_request_duration_milliseconds_bucket{reporter="destination",destination_workload=~"^%s.*",destination_workload_namespace="%s"}[1m])) by (node, le))`

	podLatencyQuery = `histogram_quantile(0.5, sum(irate(istio_request_duration_milliseconds_bucket{reporter="destination",destination_workload=~"^%s.*",destination_workload_namespace="%s"}[1m])) by (pod, le))`

	nodeCPUQuery = `1 - avg(rate(node_cpu_seconds_total{mode="idle",instance="%s:%d"}[1m]))`
)

// DefaultNodeExporterPort is the port node-exporter listens on.
const DefaultNodeExporterPort = 9100

func nodeLatency(service, namespace string) string {
	return fmt.Sprintf(nodeLatencyQuery, service, namespace)
}

func podLatency(service, namespace string) string {
	return fmt.Sprintf(podLatencyQuery, service, namespace)
}

func nodeCPU(ip string, port int) string {
	return fmt.Sprintf(nodeCPUQuery, ip, port)
}
