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


package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	placementconfig "github.com/kcp-dev/placement-optimizer/pkg/placement/config"
	"github.com/kcp-dev/placement-optimizer/pkg/placement/decision"
	"github.com/kcp-dev/placement-optimizer/pkg/reconciler/placement"
	"github.com/kcp-dev/placement-optimizer/pkg/telemetry"
)

// WorkloadOptions select the workload definition to place.
type WorkloadOptions struct {
	// ConfigFile is a YAML or JSON workload definitions file. Empty selects
	// the built-in definitions.
	ConfigFile string

	// Workload is the name of the definition within ConfigFile.
	Workload string
}

// NewWorkloadOptions defaults to the built-in smart-house workload.
func NewWorkloadOptions() *WorkloadOptions {
	return &WorkloadOptions{
		Workload: placementconfig.SmartHouseWorkload,
	}
}

// AddFlags adds the workload selection flags to fs.
func (o *WorkloadOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ConfigFile, "config", o.ConfigFile,
		"Path to a YAML or JSON workload definitions file. The built-in definitions are used if empty")
	fs.StringVar(&o.Workload, "workload", o.Workload,
		"Name of the workload definition to use")
}

// Validate checks the workload selection.
func (o *WorkloadOptions) Validate() error {
	if o.Workload == "" {
		return fmt.Errorf("--workload is required")
	}
	return nil
}

// Load reads the definitions file and returns the selected workload.
func (o *WorkloadOptions) Load() (*placementconfig.WorkloadDefinition, error) {
	file := placementconfig.Builtin()
	if o.ConfigFile != "" {
		var err error
		if file, err = placementconfig.LoadFile(o.ConfigFile); err != nil {
			return nil, err
		}
	}
	return file.Get(o.Workload)
}

// Options configure the placement control loop.
type Options struct {
	*WorkloadOptions

	// KubeConfig is the path to a kubeconfig. Empty tries in-cluster
	// configuration first, then the default loading rules.
	KubeConfig string

	// Namespace the placed workloads run in.
	Namespace string

	// PrometheusURL enables live latency and node-exporter CPU. Without it
	// CPU is read from metrics-server and latency is static.
	PrometheusURL string

	ResyncPeriod time.Duration
	Workers      int
	ReadyTimeout time.Duration

	// SampleSchedule is the cron schedule of energy sampling.
	SampleSchedule string

	MetricsPort int

	HistoryMaxRecords int
	HistoryMaxAge     time.Duration

	// Config is the computed REST config (populated during Complete())
	Config *rest.Config `json:"-"`
}

// NewOptions creates Options with default values.
func NewOptions() *Options {
	retention := decision.DefaultRetentionPolicy()
	return &Options{
		WorkloadOptions:   NewWorkloadOptions(),
		Namespace:         "default",
		ResyncPeriod:      placement.DefaultResyncPeriod,
		Workers:           2,
		ReadyTimeout:      placement.DefaultReadyTimeout,
		SampleSchedule:    telemetry.DefaultSampleSchedule,
		MetricsPort:       8080,
		HistoryMaxRecords: retention.MaxRecords,
		HistoryMaxAge:     retention.MaxAge,
	}
}

// AddFlags adds command line flags for all Options fields.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.WorkloadOptions.AddFlags(fs)

	fs.StringVar(&o.KubeConfig, "kubeconfig", o.KubeConfig,
		"Path to the kubeconfig file of the cluster the workload runs in")
	fs.StringVar(&o.Namespace, "namespace", o.Namespace,
		"Namespace of the placed workloads")
	fs.StringVar(&o.PrometheusURL, "prometheus-url", o.PrometheusURL,
		"Prometheus server with Istio and node-exporter metrics, e.g. http://prometheus:9090. Optional")
	fs.DurationVar(&o.ResyncPeriod, "resync-period", o.ResyncPeriod,
		"Period between placement passes over the entry-point services")
	fs.IntVar(&o.Workers, "workers", o.Workers,
		"Number of services placed concurrently")
	fs.DurationVar(&o.ReadyTimeout, "ready-timeout", o.ReadyTimeout,
		"How long to wait for a moved service to become ready")
	fs.StringVar(&o.SampleSchedule, "sample-schedule", o.SampleSchedule,
		"Cron schedule of node energy sampling, e.g. \"@every 30s\" or \"*/15 * * * * *\"")
	fs.IntVar(&o.MetricsPort, "metrics-port", o.MetricsPort,
		"Port to serve Prometheus metrics on. 0 disables the metrics server")
	fs.IntVar(&o.HistoryMaxRecords, "history-max-records", o.HistoryMaxRecords,
		"Maximum number of decisions kept in the history. 0 means unlimited")
	fs.DurationVar(&o.HistoryMaxAge, "history-max-age", o.HistoryMaxAge,
		"Maximum age of decisions kept in the history. 0 means unlimited")
}

// Validate validates all option values and returns an error if any are invalid.
func (o *Options) Validate() error {
	if err := o.WorkloadOptions.Validate(); err != nil {
		return err
	}
	if o.Namespace == "" {
		return fmt.Errorf("--namespace is required")
	}
	if o.ResyncPeriod <= 0 {
		return fmt.Errorf("resync-period must be positive, got %v", o.ResyncPeriod)
	}
	if o.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", o.Workers)
	}
	if o.ReadyTimeout <= 0 {
		return fmt.Errorf("ready-timeout must be positive, got %v", o.ReadyTimeout)
	}
	if o.MetricsPort < 0 || o.MetricsPort > 65535 {
		return fmt.Errorf("metrics-port must be between 0 and 65535, got %d", o.MetricsPort)
	}
	if o.HistoryMaxRecords < 0 {
		return fmt.Errorf("history-max-records must not be negative, got %d", o.HistoryMaxRecords)
	}
	if o.HistoryMaxAge < 0 {
		return fmt.Errorf("history-max-age must not be negative, got %v", o.HistoryMaxAge)
	}
	return nil
}

// RetentionPolicy returns the decision history bounds.
func (o *Options) RetentionPolicy() decision.RetentionPolicy {
	return decision.RetentionPolicy{
		MaxAge:     o.HistoryMaxAge,
		MaxRecords: o.HistoryMaxRecords,
	}
}

// Complete builds the REST config used to reach the cluster.
func (o *Options) Complete() error {
	var err error
	switch {
	case o.KubeConfig != "":
		o.Config, err = clientcmd.BuildConfigFromFlags("", o.KubeConfig)
		if err != nil {
			return fmt.Errorf("failed to build config from kubeconfig %q: %w", o.KubeConfig, err)
		}
	default:
		o.Config, err = rest.InClusterConfig()
		if err != nil {
			o.Config, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
				clientcmd.NewDefaultClientConfigLoadingRules(),
				&clientcmd.ConfigOverrides{},
			).ClientConfig()
			if err != nil {
				return fmt.Errorf("failed to get config (tried in-cluster and default kubeconfig): %w", err)
			}
		}
	}

	o.Config.QPS = 50
	o.Config.Burst = 100
	o.Config = rest.AddUserAgent(o.Config, placement.ControllerName)
	return nil
}
