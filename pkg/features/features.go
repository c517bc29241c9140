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


package features

import (
	"github.com/spf13/pflag"

	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/apimachinery/pkg/util/version"
	"k8s.io/component-base/featuregate"
)

const (
	// owner: @placement-optimizer
	// alpha: v0.1
	// Moves services onto the node chosen by the optimizer by patching their
	// deployment's node affinity and restarting its pods. When disabled,
	// decisions are computed and recorded only.
	PlacementMutation featuregate.Feature = "PlacementMutation"

	// owner: @placement-optimizer
	// alpha: v0.1
	// Samples node CPU utilization on a schedule and exports the estimated
	// power draw of every node.
	EnergyTelemetry featuregate.Feature = "EnergyTelemetry"
)

// DefaultMutableFeatureGate is the process-wide gate, set from --feature-gates.
var DefaultMutableFeatureGate = NewFeatureGate()

// DefaultFeatureGate is the read-only view of DefaultMutableFeatureGate.
var DefaultFeatureGate featuregate.FeatureGate = DefaultMutableFeatureGate

// NewFeatureGate returns a gate with every optimizer feature registered at
// its default.
func NewFeatureGate() featuregate.MutableVersionedFeatureGate {
	gate := featuregate.NewFeatureGate()
	utilruntime.Must(gate.AddVersioned(defaultVersionedFeatureGates))
	return gate
}

// defaultVersionedFeatureGates consists of all known optimizer feature keys.
// To add a new feature, define a key for it above and add it here.
var defaultVersionedFeatureGates = map[featuregate.Feature]featuregate.VersionedSpecs{
	PlacementMutation: {
		{Version: version.MustParse("0.1"), Default: false, PreRelease: featuregate.Alpha},
	},
	EnergyTelemetry: {
		{Version: version.MustParse("0.1"), Default: true, PreRelease: featuregate.Alpha},
	},
}

// AddFlag binds --feature-gates on fs to DefaultMutableFeatureGate.
func AddFlag(fs *pflag.FlagSet) {
	DefaultMutableFeatureGate.AddFlag(fs)
}
