// Copyright 2026 The Pulsar Console Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rbacsync

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/pulsarconsole/pulsarconsole/internal/pulsar"
	"github.com/pulsarconsole/pulsarconsole/internal/rbac"
)

// Scheduler runs periodic tenant-wide syncs for every environment
// whose sync mode enables a direction. Jobs share one context that is
// cancelled on Stop; cancellation takes effect between namespaces.
type Scheduler struct {
	engine  *Engine
	envs    rbac.EnvironmentRepository
	tenants pulsar.TenantLister
	logger  *slog.Logger

	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewScheduler creates a sync scheduler.
func NewScheduler(engine *Engine, envs rbac.EnvironmentRepository, tenants pulsar.TenantLister, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		engine:  engine,
		envs:    envs,
		tenants: tenants,
		logger:  logger,
	}
}

// Start schedules the periodic pass. spec is a cron expression or a
// descriptor such as "@every 15m".
func (s *Scheduler) Start(spec string) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() { s.RunOnce(ctx) }); err != nil {
		cancel()
		return err
	}
	c.Start()
	s.cron = c

	s.logger.Info("sync scheduler started", slog.String("schedule", spec))
	return nil
}

// Stop cancels running jobs and waits for the cron runner to drain.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunOnce executes one full pass over all syncable environments.
func (s *Scheduler) RunOnce(ctx context.Context) {
	envs, err := s.envs.List(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled sync: failed to list environments",
			slog.String("error", err.Error()))
		return
	}

	for _, env := range envs {
		if env.SyncMode == rbac.SyncModeConsoleOnly {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		s.syncEnvironment(ctx, env)
	}
}

func (s *Scheduler) syncEnvironment(ctx context.Context, env *rbac.Environment) {
	tenants, err := s.tenants.ListTenants(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled sync: failed to list tenants",
			slog.String("environment_id", env.ID),
			slog.String("error", err.Error()))
		return
	}

	for _, tenant := range tenants {
		if ctx.Err() != nil {
			return
		}
		// Direction defaults from the environment's sync mode.
		results := s.engine.SyncAllNamespaces(ctx, env.ID, tenant, "", false)

		var applied, failed int
		for _, r := range results {
			applied += r.ChangesApplied
			failed += r.ChangesFailed
		}
		s.logger.InfoContext(ctx, "scheduled sync finished",
			slog.String("environment_id", env.ID),
			slog.String("tenant", tenant),
			slog.Int("namespaces", len(results)),
			slog.Int("changes_applied", applied),
			slog.Int("changes_failed", failed))
	}
}
