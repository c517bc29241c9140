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
	"fmt"

	"github.com/robfig/cron/v3"
	"k8s.io/klog/v2"
)

// DefaultSampleSchedule is the cron schedule energy snapshots are taken on.
const DefaultSampleSchedule = "@every 30s"

// Sampler runs a sampling function on a cron schedule. Runs never overlap: a
// tick that fires while the previous sample is still running is skipped.
type Sampler struct {
	cron     *cron.Cron
	schedule string
	sample   func(ctx context.Context)
}

// scheduleParser accepts standard five-field cron specs, six-field specs with
// a leading seconds field and descriptors such as "@every 10s".
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NewSampler creates a sampler. Schedules accept an optional seconds field
// and descriptors such as "@every 10s".
func NewSampler(schedule string, sample func(ctx context.Context)) *Sampler {
	return &Sampler{
		cron: cron.New(
			cron.WithParser(scheduleParser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		schedule: schedule,
		sample:   sample,
	}
}

// Start schedules the sampling function and returns immediately. Sampling
// stops when ctx is cancelled or Stop is called.
func (s *Sampler) Start(ctx context.Context) error {
	logger := klog.FromContext(ctx).WithName("sampler")

	if _, err := s.cron.AddFunc(s.schedule, func() { s.sample(ctx) }); err != nil {
		return fmt.Errorf("invalid sample schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	logger.V(2).Info("started sampler", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
		logger.V(2).Info("stopped sampler")
	}()
	return nil
}

// Stop halts the schedule and waits for a running sample to finish.
func (s *Sampler) Stop() {
	<-s.cron.Stop().Done()
}
