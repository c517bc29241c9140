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
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"k8s.io/klog/v2"
)

func main() {
	ctx := setupSignalHandler()
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCommand returns the placement-optimizer command tree.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "placement-optimizer",
		Short: "Places microservices on the node that minimizes latency, inter-node traffic and energy",
		Long: `placement-optimizer scores every candidate node for a service by the latency
to its dependencies, the traffic it would send across nodes and the energy
cost of waking an idle node, and picks the cheapest.

It runs either as a one-shot decision over files (place) or as a control
loop that keeps the entry-point services of a workload placed (run).`,
		SilenceUsage: true,
	}

	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)

	cmd.AddCommand(
		newPlaceCommand(),
		newRunCommand(),
		newValidateCommand(),
	)
	return cmd
}

// setupSignalHandler registers signal handlers and returns a context that is cancelled on signal
func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1) // second signal. Exit directly.
	}()
	return ctx
}
