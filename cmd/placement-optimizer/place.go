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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"

	"github.com/kcp-dev/placement-optimizer/cmd/placement-optimizer/options"
	"github.com/kcp-dev/placement-optimizer/pkg/placement/decision"
	"github.com/kcp-dev/placement-optimizer/pkg/placement/scheduler"
	"github.com/kcp-dev/placement-optimizer/pkg/placement/topology"
)

type placeOptions struct {
	*options.WorkloadOptions

	Service             string
	Candidates          []string
	PlacementFile       string
	ObservedLatencyFile string
	Output              string
}

func newPlaceOptions() *placeOptions {
	return &placeOptions{
		WorkloadOptions: options.NewWorkloadOptions(),
		Output:          string(decision.OutputFormatTable),
	}
}

func newPlaceCommand() *cobra.Command {
	o := newPlaceOptions()
	cmd := &cobra.Command{
		Use:   "place",
		Short: "Choose a node for one service from a placement snapshot",
		Example: `  # place the inference service given where every pod runs today
  placement-optimizer place --service s1-inference --placement placement.yaml

  # restrict the candidates and use measured latencies, in milliseconds
  placement-optimizer place --config workloads.yaml --workload demo --service svc_a \
    --candidates n1,n2 --observed-latency latency.yaml -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd)
		},
	}

	o.WorkloadOptions.AddFlags(cmd.Flags())
	cmd.Flags().StringVar(&o.Service, "service", o.Service, "Service to place")
	cmd.Flags().StringSliceVar(&o.Candidates, "candidates", o.Candidates,
		"Candidate nodes in preference order. Defaults to the nodes of the workload definition")
	cmd.Flags().StringVar(&o.PlacementFile, "placement", o.PlacementFile,
		"YAML or JSON file mapping service -> node -> pod names. Empty means nothing is running")
	cmd.Flags().StringVar(&o.ObservedLatencyFile, "observed-latency", o.ObservedLatencyFile,
		"YAML or JSON file mapping node -> measured latency in milliseconds")
	cmd.Flags().StringVarP(&o.Output, "output", "o", o.Output,
		fmt.Sprintf("Output format, one of %v", decision.OutputFormats))
	return cmd
}

func (o *placeOptions) validate() (decision.OutputFormat, error) {
	if err := o.WorkloadOptions.Validate(); err != nil {
		return "", err
	}
	if o.Service == "" {
		return "", fmt.Errorf("--service is required")
	}
	return decision.ParseOutputFormat(o.Output)
}

func (o *placeOptions) state() (scheduler.State, error) {
	state := scheduler.State{Placement: topology.PlacementMap{}}
	if o.PlacementFile != "" {
		if err := readYAML(o.PlacementFile, &state.Placement); err != nil {
			return state, err
		}
		if err := state.Placement.Validate(); err != nil {
			return state, fmt.Errorf("%s: %w", o.PlacementFile, err)
		}
	}
	if o.ObservedLatencyFile != "" {
		if err := readYAML(o.ObservedLatencyFile, &state.ObservedLatency); err != nil {
			return state, err
		}
	}
	return state, nil
}

func (o *placeOptions) run(cmd *cobra.Command) error {
	logger := klog.FromContext(cmd.Context())

	format, err := o.validate()
	if err != nil {
		return err
	}
	def, err := o.Load()
	if err != nil {
		return err
	}
	engine, err := def.Engine()
	if err != nil {
		return err
	}
	state, err := o.state()
	if err != nil {
		return err
	}

	candidates := o.Candidates
	if len(candidates) == 0 {
		candidates = def.Candidates()
	}

	d, err := engine.Place(o.Service, candidates, state)
	if err != nil {
		return err
	}
	logger.V(4).Info("placement decision", "service", d.Service, "node", d.Node, "score", d.Score)

	out, err := decision.NewFormatter().FormatDecision(d, format)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func readYAML(path string, into interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, into); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
