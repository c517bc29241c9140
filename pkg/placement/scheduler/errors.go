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

package scheduler

import (
	"fmt"
	"strings"
)

// ConfigError reports configuration that cannot be scored against, such as a
// declared dependency without association metadata or a weight that is not a
// number.
type ConfigError struct {
	Service string
	Field   string
	Reason  string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := "invalid placement configuration"
	if e.Service != "" {
		msg += fmt.Sprintf(" for service %q", e.Service)
	}
	if detail := strings.TrimSpace(e.Field + " " + e.Reason); detail != "" {
		msg += ": " + detail
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NoCandidateError is returned when a placement is requested with an empty
// candidate list.
type NoCandidateError struct {
	Service string
}

func (e *NoCandidateError) Error() string {
	return fmt.Sprintf("no candidate nodes to place service %q on", e.Service)
}

// MissingMetricError describes a cost dimension that had no usable signal.
// It is informational: decisions are still made, using static association
// values or a zero normalized cost for the affected dimension.
type MissingMetricError struct {
	Dimension string `json:"dimension"`
	Reason    string `json:"reason"`
}

func (e MissingMetricError) Error() string {
	return fmt.Sprintf("missing %s signal: %s", e.Dimension, e.Reason)
}

// Cost dimensions as reported in MissingMetricError.
const (
	DimensionTraffic    = "traffic"
	DimensionLatency    = "latency"
	DimensionActivation = "activation"
)
