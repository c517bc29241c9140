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


package placement

import (
	"context"
	"fmt"
	"time"

	"github.com/kcp-dev/placement-optimizer/pkg/health"
)

// staleSyncPeriods is how many resync periods may pass without a successful
// placement before the controller reports itself unhealthy.
const staleSyncPeriods = 3

var _ health.Checker = &Controller{}

func (c *Controller) observeSync(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSyncErr = err
	if err == nil {
		c.lastSync = c.now()
	}
}

// Name implements health.Checker.
func (c *Controller) Name() string {
	return ControllerName
}

// Check implements health.Checker. The controller is healthy while it runs
// and has placed a service successfully within the last few resync periods.
func (c *Controller) Check(_ context.Context) health.Status {
	c.mu.RLock()
	started, lastSync, lastErr := c.started, c.lastSync, c.lastSyncErr
	c.mu.RUnlock()

	if !started {
		return health.Unhealthy("controller is not running")
	}

	since := c.now().Sub(lastSync)
	status := health.Healthy(fmt.Sprintf("last successful placement %s ago", since.Round(time.Millisecond)))
	if since > staleSyncPeriods*c.resyncPeriod {
		status = health.Unhealthy(fmt.Sprintf("no successful placement for %s", since.Round(time.Millisecond)))
	}
	status.Details = map[string]interface{}{
		"lastSync":  lastSync,
		"queueLen":  c.queue.Len(),
		"resync":    c.resyncPeriod.String(),
		"lastError": "",
	}
	if lastErr != nil {
		status.Details["lastError"] = lastErr.Error()
	}
	return status
}
