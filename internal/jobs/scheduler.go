// Package jobs runs the time-driven license sweeps on cron schedules:
// expiring licenses, lapsed grace periods, and stale device bindings.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/talos-license/talos/internal/api"
	"github.com/talos-license/talos/internal/config"
	"github.com/talos-license/talos/internal/licensing"
)

// Sweep advances one class of time-driven transitions and reports how
// many rows moved. Sweeps are idempotent; running one twice, or
// concurrently with traffic, applies each transition at most once.
type Sweep func(ctx context.Context, now time.Time) (int, error)

// Scheduler owns the cron runner and the registered sweeps.
type Scheduler struct {
	cron   *cron.Cron
	engine *licensing.Service
	cfg    config.Jobs
}

// New builds a scheduler over the engine with the configured schedules.
func New(engine *licensing.Service, cfg config.Jobs) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		engine: engine,
		cfg:    cfg,
	}
}

// Start registers the sweeps and launches the cron runner. The context
// bounds each individual run, not the runner itself; call Stop to halt.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.add(ctx, "license_expiration", s.cfg.LicenseExpirationCron, s.engine.ExpireLicenses); err != nil {
		return err
	}
	if err := s.add(ctx, "grace_period", s.cfg.GracePeriodCron, s.engine.ExpireGracePeriods); err != nil {
		return err
	}
	if s.cfg.StaleDeviceCleanupEnabled {
		staleAfter := time.Duration(s.cfg.StaleDeviceDays) * 24 * time.Hour
		sweep := func(ctx context.Context, now time.Time) (int, error) {
			return s.engine.CleanStaleDevices(ctx, now.Add(-staleAfter))
		}
		if err := s.add(ctx, "stale_device", s.cfg.StaleDeviceCron, sweep); err != nil {
			return err
		}
	}

	s.cron.Start()
	log.Info().
		Str("license_expiration", s.cfg.LicenseExpirationCron).
		Str("grace_period", s.cfg.GracePeriodCron).
		Bool("stale_device_cleanup", s.cfg.StaleDeviceCleanupEnabled).
		Msg("Job scheduler started")
	return nil
}

func (s *Scheduler) add(ctx context.Context, name, spec string, sweep Sweep) error {
	if _, err := s.cron.AddFunc(spec, func() {
		RunSweep(ctx, name, sweep)
	}); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	return nil
}

// Stop halts the cron runner and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Job scheduler stopped")
}

// RunSweep executes one sweep now, logging and counting the result.
func RunSweep(ctx context.Context, name string, sweep Sweep) {
	start := time.Now()
	count, err := sweep(ctx, start.UTC())
	if err != nil {
		log.Error().Err(err).Str("job", name).Msg("Background sweep failed")
		return
	}
	api.CountJobTransitions(name, count)
	log.Info().
		Str("job", name).
		Int("transitions", count).
		Dur("duration", time.Since(start)).
		Msg("Background sweep completed")
}
