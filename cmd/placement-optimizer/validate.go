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

	"github.com/spf13/cobra"

	placementconfig "github.com/kcp-dev/placement-optimizer/pkg/placement/config"
)

func newValidateCommand() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a workload definitions file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file := placementconfig.Builtin()
			if configFile != "" {
				var err error
				if file, err = placementconfig.LoadFile(configFile); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, name := range file.Names() {
				def, err := file.Get(name)
				if err != nil {
					return err
				}
				engine, err := def.Engine()
				if err != nil {
					return fmt.Errorf("workload %q: %w", name, err)
				}
				fmt.Fprintf(out, "workload %q is valid: %d services, %d nodes, %d associations\n",
					name, len(def.Services), len(def.Nodes), engine.Graph().Len())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configFile, "config", configFile,
		"Path to a YAML or JSON workload definitions file. The built-in definitions are checked if empty")
	return cmd
}
