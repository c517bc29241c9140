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
	"fmt"

	"github.com/spf13/cobra"

	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/kcp-dev/placement-optimizer/cmd/placement-optimizer/options"
	"github.com/kcp-dev/placement-optimizer/pkg/features"
	"github.com/kcp-dev/placement-optimizer/pkg/health"
	"github.com/kcp-dev/placement-optimizer/pkg/metrics"
	"github.com/kcp-dev/placement-optimizer/pkg/metrics/collectors"
	"github.com/kcp-dev/placement-optimizer/pkg/placement/decision"
	"github.com/kcp-dev/placement-optimizer/pkg/placement/provider"
	"github.com/kcp-dev/placement-optimizer/pkg/reconciler/placement"
	"github.com/kcp-dev/placement-optimizer/pkg/telemetry"
)

func newRunCommand() *cobra.Command {
	o := options.NewOptions()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Keep the entry-point services of a workload on their best node",
		Long: `run re-places every entry-point service of the workload each resync period.
Decisions are recorded and exported as metrics. Services are only moved when
the PlacementMutation feature gate is enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Validate(); err != nil {
				return err
			}
			if err := o.Complete(); err != nil {
				return err
			}
			return run(cmd.Context(), o)
		},
	}

	o.AddFlags(cmd.Flags())
	features.AddFlag(cmd.Flags())
	return cmd
}

func run(ctx context.Context, o *options.Options) error {
	logger := klog.FromContext(ctx)

	def, err := o.Load()
	if err != nil {
		return err
	}

	kubeClient, err := kubernetes.NewForConfig(o.Config)
	if err != nil {
		return fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	var (
		latency telemetry.LatencySource
		cpu     telemetry.CPUSource
	)
	if o.PrometheusURL != "" {
		src, err := telemetry.NewPrometheusSource(o.PrometheusURL, o.Namespace)
		if err != nil {
			return err
		}
		latency, cpu = src, src
	} else {
		metricsClient, err := metricsclientset.NewForConfig(o.Config)
		if err != nil {
			return fmt.Errorf("failed to create metrics client: %w", err)
		}
		cpu = telemetry.NewMetricsServerSource(kubeClient, metricsClient)
	}

	registry := metrics.NewMetricsRegistry(o.MetricsPort > 0)
	collector := collectors.NewPlacementCollector()
	if err := registry.RegisterCollector(collector); err != nil {
		return fmt.Errorf("failed to register placement metrics: %w", err)
	}

	controller, err := placement.NewController(placement.ControllerConfig{
		Definition:     def,
		Provider:       provider.NewKubernetesProvider(kubeClient, o.Namespace),
		Latency:        latency,
		Energy:         telemetry.NewEnergyCollector(cpu),
		Recorder:       decision.NewRecorder(o.RetentionPolicy()),
		Metrics:        collector,
		FeatureGate:    features.DefaultFeatureGate,
		ResyncPeriod:   o.ResyncPeriod,
		ReadyTimeout:   o.ReadyTimeout,
		SampleSchedule: o.SampleSchedule,
	})
	if err != nil {
		return err
	}

	if o.MetricsPort > 0 {
		ready := health.NewAggregator(0)
		ready.AddChecker(controller)
		ready.AddChecker(health.NewFuncChecker("kubernetes", func(ctx context.Context) error {
			_, err := kubeClient.Discovery().ServerVersion()
			return err
		}))
		if _, err := NewMetricsServer(fmt.Sprintf(":%d", o.MetricsPort), registry, ready).Start(ctx); err != nil {
			return err
		}
	}

	logger.Info("starting placement optimizer",
		"workload", o.Workload,
		"namespace", o.Namespace,
		"liveLatency", latency != nil,
		"placementMutation", features.DefaultFeatureGate.Enabled(features.PlacementMutation),
	)
	controller.Start(ctx, o.Workers)
	return nil
}
