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
	"context"
	"sort"

	"github.com/kcp-dev/placement-optimizer/pkg/placement/topology"
)

// Linear power model fitted on the edge workers: watts = slope*cpu + idle.
const (
	powerSlopeWatts = 3.4842
	idlePowerWatts  = 2.2434
)

// EstimatePower converts CPU utilization in [0, 1] into watts.
func EstimatePower(cpuUtil float64) float64 {
	return powerSlopeWatts*clamp01(cpuUtil) + idlePowerWatts
}

// NodeEnergy is the energy reading of one node.
type NodeEnergy struct {
	CPUUtil    float64 `json:"cpuUtil"`
	PowerWatts float64 `json:"powerWatts"`
	Active     bool    `json:"active"`
}

// EnergySnapshot maps node -> energy reading.
type EnergySnapshot map[string]NodeEnergy

// TotalPower sums the power of every node.
func (s EnergySnapshot) TotalPower() float64 {
	nodes := make([]string, 0, len(s))
	for n := range s {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	total := 0.0
	for _, n := range nodes {
		total += s[n].PowerWatts
	}
	return total
}

// EnergyCollector derives node energy from a CPU source.
type EnergyCollector struct {
	cpu CPUSource
}

// NewEnergyCollector creates a collector reading CPU from cpu.
func NewEnergyCollector(cpu CPUSource) *EnergyCollector {
	return &EnergyCollector{cpu: cpu}
}

// Snapshot reads CPU for every node in nodeIPs and estimates its power draw.
// Nodes hosting no pods are considered powered down and report zero watts.
// A partial CPU read still yields a snapshot; the error is returned with it.
func (c *EnergyCollector) Snapshot(ctx context.Context, pm topology.PlacementMap, nodeIPs map[string]string) (EnergySnapshot, error) {
	cpu, err := c.cpu.NodeCPU(ctx, nodeIPs)

	snap := make(EnergySnapshot, len(nodeIPs))
	for node := range nodeIPs {
		e := NodeEnergy{CPUUtil: cpu[node], Active: pm.NodeHasPods(node)}
		if e.Active {
			e.PowerWatts = EstimatePower(e.CPUUtil)
		}
		snap[node] = e
	}
	return snap, err
}
