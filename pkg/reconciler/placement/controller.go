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


// Package placement runs the control loop that keeps the entry-point services
// of a workload on the node the scoring engine prefers.
package placement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/workqueue"
	"k8s.io/component-base/featuregate"
	"k8s.io/klog/v2"

	"github.com/kcp-dev/placement-optimizer/pkg/features"
	"github.com/kcp-dev/placement-optimizer/pkg/metrics/collectors"
	placementconfig "github.com/kcp-dev/placement-optimizer/pkg/placement/config"
	"github.com/kcp-dev/placement-optimizer/pkg/placement/decision"
	"github.com/kcp-dev/placement-optimizer/pkg/placement/provider"
	"github.com/kcp-dev/placement-optimizer/pkg/placement/scheduler"
	"github.com/kcp-dev/placement-optimizer/pkg/placement/topology"
	"github.com/kcp-dev/placement-optimizer/pkg/telemetry"
)

const (
	// ControllerName defines the name of the placement controller.
	ControllerName = "placement-optimizer"

	// DefaultResyncPeriod is how often every entry-point service is re-placed.
	DefaultResyncPeriod = 30 * time.Second

	// DefaultReadyTimeout bounds the wait for a moved service to become ready.
	DefaultReadyTimeout = 5 * time.Minute

	tracerName = "github.com/kcp-dev/placement-optimizer/reconciler/placement"
)

// ControllerConfig wires the controller to a workload and its environment.
type ControllerConfig struct {
	// Definition is the workload being placed. Required.
	Definition *placementconfig.WorkloadDefinition

	// Provider reads pod locations and moves services. Required.
	Provider provider.Interface

	// Latency supplies live per-node latency. Optional: without it the
	// static association latencies are scored.
	Latency telemetry.LatencySource

	// Energy samples node power. Optional.
	Energy *telemetry.EnergyCollector

	// Recorder keeps the decision history. A default recorder is created
	// when nil.
	Recorder *decision.Recorder

	// Metrics receives decision and cluster metrics. Optional.
	Metrics *collectors.PlacementCollector

	// FeatureGate defaults to features.DefaultFeatureGate.
	FeatureGate featuregate.FeatureGate

	ResyncPeriod   time.Duration
	ReadyTimeout   time.Duration
	SampleSchedule string
}

// Controller places entry-point services one at a time per service.
type Controller struct {
	queue workqueue.TypedRateLimitingInterface[string]

	engine      *scheduler.Engine
	services    []string
	entrypoints []string
	candidates  []string

	provider provider.Interface
	latency  telemetry.LatencySource
	energy   *telemetry.EnergyCollector
	recorder *decision.Recorder
	metrics  *collectors.PlacementCollector
	gate     featuregate.FeatureGate
	tracer   trace.Tracer

	resyncPeriod   time.Duration
	readyTimeout   time.Duration
	sampleSchedule string

	now func() time.Time

	mu             sync.RWMutex
	lastSnapshot   telemetry.EnergySnapshot
	lastSnapshotAt time.Time
	started        bool
	lastSync       time.Time
	lastSyncErr    error
}

// NewController validates cfg and builds the scoring engine of its workload.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Definition == nil {
		return nil, &scheduler.ConfigError{Reason: "a workload definition is required"}
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("a placement provider is required")
	}
	engine, err := cfg.Definition.Engine()
	if err != nil {
		return nil, err
	}

	c := &Controller{
		queue: workqueue.NewTypedRateLimitingQueueWithConfig(
			workqueue.DefaultTypedControllerRateLimiter[string](),
			workqueue.TypedRateLimitingQueueConfig[string]{
				Name: ControllerName,
			},
		),
		engine:         engine,
		services:       append([]string(nil), cfg.Definition.Services...),
		entrypoints:    append([]string(nil), cfg.Definition.Entrypoints...),
		candidates:     cfg.Definition.Candidates(),
		provider:       cfg.Provider,
		latency:        cfg.Latency,
		energy:         cfg.Energy,
		recorder:       cfg.Recorder,
		metrics:        cfg.Metrics,
		gate:           cfg.FeatureGate,
		tracer:         otel.Tracer(tracerName),
		resyncPeriod:   cfg.ResyncPeriod,
		readyTimeout:   cfg.ReadyTimeout,
		sampleSchedule: cfg.SampleSchedule,
		now:            time.Now,
	}
	if len(c.entrypoints) == 0 {
		c.entrypoints = append([]string(nil), c.services...)
	}
	if c.recorder == nil {
		c.recorder = decision.NewRecorder(decision.DefaultRetentionPolicy())
	}
	if c.metrics == nil {
		// Unregistered collectors record nothing.
		c.metrics = collectors.NewPlacementCollector()
	}
	if c.gate == nil {
		c.gate = features.DefaultFeatureGate
	}
	if c.resyncPeriod <= 0 {
		c.resyncPeriod = DefaultResyncPeriod
	}
	if c.readyTimeout <= 0 {
		c.readyTimeout = DefaultReadyTimeout
	}
	if c.sampleSchedule == "" {
		c.sampleSchedule = telemetry.DefaultSampleSchedule
	}
	return c, nil
}

// Recorder returns the decision history of the controller.
func (c *Controller) Recorder() *decision.Recorder {
	return c.recorder
}

// EnergySnapshot returns the latest node energy sample and when it was taken.
func (c *Controller) EnergySnapshot() (telemetry.EnergySnapshot, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSnapshot, c.lastSnapshotAt
}

// Enqueue schedules service for placement.
func (c *Controller) Enqueue(service string) {
	c.queue.Add(service)
}

func (c *Controller) enqueueEntrypoints(ctx context.Context) {
	logger := klog.FromContext(ctx)
	for _, service := range c.entrypoints {
		logger.V(4).Info("enqueueing service", "service", service)
		c.queue.Add(service)
	}
}

// Start runs the controller until ctx is cancelled.
func (c *Controller) Start(ctx context.Context, workers int) {
	defer runtime.HandleCrash()
	defer c.queue.ShutDown()

	logger := klog.FromContext(ctx).WithValues("controller", ControllerName)
	ctx = klog.NewContext(ctx, logger)
	logger.Info("starting controller")
	defer logger.Info("shutting down controller")

	c.mu.Lock()
	c.started = true
	c.lastSync = c.now()
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
	}()

	if c.energy != nil && c.gate.Enabled(features.EnergyTelemetry) {
		sampler := telemetry.NewSampler(c.sampleSchedule, c.sampleEnergy)
		if err := sampler.Start(ctx); err != nil {
			runtime.HandleError(fmt.Errorf("energy sampling disabled: %w", err))
		}
	}

	for i := 0; i < workers; i++ {
		go wait.UntilWithContext(ctx, c.startWorker, time.Second)
	}
	go wait.UntilWithContext(ctx, c.enqueueEntrypoints, c.resyncPeriod)

	logger.Info("controller started", "workers", workers, "resyncPeriod", c.resyncPeriod)
	<-ctx.Done()
}

func (c *Controller) startWorker(ctx context.Context) {
	defer runtime.HandleCrash()

	for c.processNextWorkItem(ctx) {
	}
}

func (c *Controller) processNextWorkItem(ctx context.Context) bool {
	key, quit := c.queue.Get()
	if quit {
		return false
	}
	defer c.queue.Done(key)

	err := c.Reconcile(ctx, key)
	c.observeSync(err)
	if err != nil {
		runtime.HandleError(fmt.Errorf("failed to place service %q: %w", key, err))
		c.queue.AddRateLimited(key)
		return true
	}
	c.queue.Forget(key)
	return true
}

// Reconcile scores the candidate nodes of service against the live cluster
// state, records the decision and, when PlacementMutation is enabled, moves
// the service. Configuration errors are recorded and not retried.
func (c *Controller) Reconcile(ctx context.Context, service string) error {
	ctx, span := c.tracer.Start(ctx, "placement.reconcile",
		trace.WithAttributes(attribute.String("placement.service", service)))
	defer span.End()

	logger := klog.FromContext(ctx).WithValues("service", service)

	err := c.reconcile(ctx, logger, service, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Controller) reconcile(ctx context.Context, logger klog.Logger, service string, span trace.Span) error {
	pm, err := c.provider.GetPodMapping(ctx, c.services)
	if err != nil {
		return fmt.Errorf("failed to read pod placement: %w", err)
	}

	candidates := c.candidates
	if len(candidates) == 0 {
		if candidates, err = c.provider.GetNodes(ctx); err != nil {
			return fmt.Errorf("failed to list candidate nodes: %w", err)
		}
	}

	var observed scheduler.ObservedLatency
	if c.latency != nil {
		observed, err = c.latency.NodeLatency(ctx, service, pm)
		if err != nil {
			logger.V(2).Info("no live latency, scoring static association latency", "err", err.Error())
			observed = nil
		}
	}

	start := time.Now()
	d, err := c.engine.Place(service, candidates, scheduler.State{Placement: pm, ObservedLatency: observed})
	duration := time.Since(start)

	c.metrics.RecordInterNodeTraffic(topology.InterNodeTraffic(c.engine.Graph(), pm))

	if err != nil {
		c.metrics.RecordFailure(ctx, service, err, duration)
		c.recorder.RecordFailure(ctx, service, err)

		var noCandidate *scheduler.NoCandidateError
		var configErr *scheduler.ConfigError
		if errors.As(err, &noCandidate) || errors.As(err, &configErr) {
			logger.Error(err, "cannot place service")
			return nil
		}
		return err
	}

	logger.V(4).Info("placement decision", "node", d.Node, "score", d.Score, "warnings", len(d.Warnings))
	if loggerV := logger.V(6); loggerV.Enabled() {
		for _, cand := range d.Candidates {
			loggerV.Info("candidate", "node", cand.Node, "raw", cand.Raw, "normalized", cand.Normalized, "score", cand.Score)
		}
	}
	span.SetAttributes(
		attribute.String("placement.node", d.Node),
		attribute.Float64("placement.score", d.Score),
	)

	rec, err := c.recorder.Record(ctx, d, false)
	if err != nil {
		return err
	}
	defer c.recorder.Prune(ctx, time.Now())

	applied, err := c.apply(ctx, logger, service, d.Node)
	if applied {
		if markErr := c.recorder.MarkApplied(rec.ID); markErr != nil {
			logger.Error(markErr, "failed to mark decision applied", "id", rec.ID)
		}
	}
	c.metrics.RecordDecision(ctx, d, applied, duration)
	return err
}

// apply moves service to node unless it already runs there or mutation is
// disabled. It reports whether the service was moved and became ready.
func (c *Controller) apply(ctx context.Context, logger klog.Logger, service, node string) (bool, error) {
	if !c.gate.Enabled(features.PlacementMutation) {
		return false, nil
	}

	current, err := c.provider.CurrentNode(ctx, service)
	if err != nil {
		return false, fmt.Errorf("failed to find current node: %w", err)
	}
	if current == node {
		logger.V(4).Info("service already on selected node", "node", node)
		return false, nil
	}

	logger.Info("moving service", "from", current, "to", node)
	if err := c.provider.PlaceOn(ctx, service, node); err != nil {
		return false, fmt.Errorf("failed to move service to %s: %w", node, err)
	}
	if err := c.provider.WaitForReady(ctx, service, c.readyTimeout); err != nil {
		return false, fmt.Errorf("service moved to %s but did not become ready: %w", node, err)
	}
	return true, nil
}

func (c *Controller) sampleEnergy(ctx context.Context) {
	logger := klog.FromContext(ctx)

	pm, err := c.provider.GetPodMapping(ctx, c.services)
	if err != nil {
		runtime.HandleError(fmt.Errorf("energy sample: failed to read pod placement: %w", err))
		return
	}
	ips, err := c.provider.GetInternalIPMapping(ctx)
	if err != nil {
		runtime.HandleError(fmt.Errorf("energy sample: failed to read node addresses: %w", err))
		return
	}

	snap, err := c.energy.Snapshot(ctx, pm, ips)
	if err != nil {
		logger.V(2).Info("partial energy sample", "err", err.Error())
	}
	c.metrics.RecordEnergySnapshot(snap)

	c.mu.Lock()
	c.lastSnapshot = snap
	c.lastSnapshotAt = time.Now()
	c.mu.Unlock()

	logger.V(4).Info("sampled node energy", "nodes", len(snap), "totalWatts", snap.TotalPower())
}
