package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/maltedev/pricewatch/internal/config"
)

// Runner executes a job by name. *Service satisfies it.
type Runner interface {
	Run(ctx context.Context, job string) (Result, error)
}

type Schedule struct {
	Job      string
	Interval time.Duration
}

// SchedulesFromConfig maps the configured intervals to jobs. Jobs with a
// non-positive interval are left out.
func SchedulesFromConfig(cfg config.SchedulerConfig) []Schedule {
	all := []Schedule{
		{Job: JobUpdateProxies, Interval: cfg.ProxyInterval},
		{Job: JobImportSuppliers, Interval: cfg.SupplierInterval},
		{Job: JobCrawlCompetitors, Interval: cfg.CrawlInterval},
		{Job: JobRecomputeComparisons, Interval: cfg.CompareInterval},
	}

	out := make([]Schedule, 0, len(all))
	for _, s := range all {
		if s.Interval > 0 {
			out = append(out, s)
		}
	}
	return out
}

type Scheduler struct {
	runner    Runner
	schedules []Schedule
	logger    *slog.Logger
}

func NewScheduler(runner Runner, schedules []Schedule, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:    runner,
		schedules: schedules,
		logger:    logger.With("component", "scheduler"),
	}
}

// Run ticks every schedule until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "jobs", len(s.schedules))

	var wg sync.WaitGroup
	for _, sched := range s.schedules {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, sched)
		}()
	}
	wg.Wait()

	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, sched Schedule) {
	ticker := time.NewTicker(sched.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(ctx, sched.Job)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, job string) {
	_, err := s.runner.Run(ctx, job)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyRunning):
		s.logger.Info("skipping scheduled run, previous run still active", "job", job)
	case ctx.Err() != nil:
	default:
		s.logger.Error("scheduled run failed", "job", job, "error", err)
	}
}
