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

package config

import (
	"k8s.io/utils/ptr"
)

// SmartHouseWorkload is the name of the built-in reference workload.
const SmartHouseWorkload = "smart-house"

// Builtin returns the workload definitions shipped with the optimizer.
func Builtin() *File {
	return &File{
		Workloads: map[string]WorkloadDefinition{
			SmartHouseWorkload: smartHouse(),
		},
	}
}

// smartHouse is a five-service home automation workload: an inference engine
// backed by a model depot, a sensor flood feeding a cruncher, and a standalone
// audio processor. Services without a real dependency carry a self-loop so
// their intrinsic per-pod latency is still scored.
func smartHouse() WorkloadDefinition {
	return WorkloadDefinition{
		Version: "1.0",
		Nodes:   []string{"worker-1", "worker-2", "worker-3"},
		Services: []string{
			"s1-inference",
			"s2-modeldepot",
			"s3-sensorcruncher",
			"s4-sensorflood",
			"s5-audioprocessor",
		},
		Dependencies: map[string][]string{
			"s1-inference":   {"s2-modeldepot"},
			"s4-sensorflood": {"s3-sensorcruncher"},
		},
		Associations: []Association{
			{Source: "s1-inference", Destination: "s2-modeldepot", TrafficCost: ptr.To(24255131.0), ColocatedLatency: ptr.To(1.7), RemoteLatency: ptr.To(10.47)},
			{Source: "s4-sensorflood", Destination: "s3-sensorcruncher", TrafficCost: ptr.To(1281787.0), ColocatedLatency: ptr.To(1.22), RemoteLatency: ptr.To(2.31)},
			{Source: "s3-sensorcruncher", Destination: "s3-sensorcruncher", TrafficCost: ptr.To(0.0), ColocatedLatency: ptr.To(0.877), RemoteLatency: ptr.To(0.877)},
			{Source: "s5-audioprocessor", Destination: "s5-audioprocessor", TrafficCost: ptr.To(0.0), ColocatedLatency: ptr.To(0.877), RemoteLatency: ptr.To(0.877)},
		},
		Entrypoints: []string{"s1-inference", "s4-sensorflood", "s5-audioprocessor"},
		Weights: &Weights{
			Latency: ptr.To(0.5),
			Traffic: ptr.To(0.2),
			Energy:  ptr.To(0.3),
		},
		IdleNodePenalty: ptr.To(2.38),
	}
}
