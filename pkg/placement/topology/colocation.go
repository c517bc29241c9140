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

package topology

// ColocationRatio returns the fraction of dependency's pods that run on node,
// in [0, 1]. A dependency with no placed pods yields 0.
func ColocationRatio(dependency, node string, pm PlacementMap) float64 {
	total := pm.PodCount(dependency)
	if total == 0 {
		return 0.0
	}
	return float64(pm.PodsOn(dependency, node)) / float64(total)
}

// IsColocated reports whether every pod of dependency runs on node.
func IsColocated(dependency, node string, pm PlacementMap) bool {
	return ColocationRatio(dependency, node, pm) >= 1.0
}
