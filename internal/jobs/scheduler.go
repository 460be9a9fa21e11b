// Package jobs runs the periodic ledger maintenance: resolving withdrawals
// whose timers were lost and dropping idle sessions.
package jobs

import (
	"context"
	"fmt"
	"time"

	"rewards_webapp/internal/logger"

	"github.com/robfig/cron/v3"
)

// Engine is what the scheduler maintains
type Engine interface {
	SweepWithdrawals(ctx context.Context) (int, error)
	EvictIdle(ttl time.Duration) int
}

// Scheduler owns the cron runner
type Scheduler struct {
	cron    *cron.Cron
	engine  Engine
	sweep   string
	idleTTL time.Duration
}

// NewScheduler validates sweepSpec up front; idleTTL <= 0 disables eviction.
func NewScheduler(engine Engine, sweepSpec string, idleTTL time.Duration) (*Scheduler, error) {
	if _, err := cron.ParseStandard(sweepSpec); err != nil {
		return nil, fmt.Errorf("invalid sweep spec %q: %w", sweepSpec, err)
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		engine:  engine,
		sweep:   sweepSpec,
		idleTTL: idleTTL,
	}, nil
}

// Start registers the jobs and starts the runner. Jobs use ctx for store calls.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.sweep, func() { s.runSweep(ctx) }); err != nil {
		return err
	}
	if s.idleTTL > 0 {
		spec := fmt.Sprintf("@every %s", evictEvery(s.idleTTL))
		if _, err := s.cron.AddFunc(spec, s.runEvict); err != nil {
			return err
		}
	}

	s.cron.Start()
	logger.Info("[CRON] scheduler started", "sweep", s.sweep, "idle_ttl", s.idleTTL.String())
	return nil
}

// Stop waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("[CRON] scheduler stopped")
}

func (s *Scheduler) runSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := s.engine.SweepWithdrawals(ctx)
	if err != nil {
		logger.Error("[CRON] withdrawal sweep failed", "resolved", n, "error", err)
		return
	}
	if n > 0 {
		logger.Info("[CRON] withdrawals resolved", "count", n)
	}
}

func (s *Scheduler) runEvict() {
	if n := s.engine.EvictIdle(s.idleTTL); n > 0 {
		logger.Debug("[CRON] idle sessions evicted", "count", n)
	}
}

// половина TTL, но не чаще раза в минуту
func evictEvery(ttl time.Duration) time.Duration {
	d := ttl / 2
	if d < time.Minute {
		d = time.Minute
	}
	return d.Round(time.Second)
}
