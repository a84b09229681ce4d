package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/metrics"
)

const defaultInterval = 30 * time.Second

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// Ledger defaults to an in-process map; replicas sharing a lock should
	// share a RedisLedger too.
	Ledger RunLedger
}

// Service ticks every Interval. The replica holding the lease renews it each
// tick and runs the jobs that are due; it lets go only when Run returns.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	ledger   RunLedger
	metrics  *metrics.CronJobMetrics
	interval time.Duration

	holding bool
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	s := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		ledger:   params.Ledger,
		metrics:  params.Metrics,
		interval: params.Interval,
		now:      time.Now,
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.ledger == nil {
		s.ledger = newMemoryLedger()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	return s, nil
}

// Run performs one cycle immediately, then one per tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.releaseLease(context.WithoutCancel(ctx))

	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle finished with errors", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runCycle takes or renews the lease, then returns the combined errors of
// every job that failed; one failing job never prevents the rest from running.
func (s *Service) runCycle(ctx context.Context) error {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire cron lock: %w", err)
	}
	if !acquired {
		if s.holding {
			s.logg.Warn(ctx, "cron lease lost to another replica")
		}
		s.holding = false
		s.logg.Debug(ctx, "cron lock held by another replica")
		return nil
	}
	s.holding = true

	due, errs := s.dueJobs(ctx, s.now())
	for _, job := range due {
		errs = multierr.Append(errs, s.runJob(ctx, job))
	}
	return errs
}

func (s *Service) releaseLease(ctx context.Context) {
	if !s.holding {
		return
	}
	s.holding = false
	if err := s.lock.Release(ctx); err != nil {
		s.logg.Error(ctx, "release cron lock", err)
	}
}

// dueJobs skips a job whose last run cannot be read rather than risk running
// it twice.
func (s *Service) dueJobs(ctx context.Context, now time.Time) ([]Job, error) {
	var (
		due  []Job
		errs error
	)
	for _, job := range s.registry.Jobs() {
		every := cadence(job)
		if every <= 0 {
			due = append(due, job)
			continue
		}
		last, ran, err := s.ledger.LastRun(ctx, job.Name())
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if ran && now.Sub(last) < every {
			continue
		}
		due = append(due, job)
	}
	return due, errs
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	started := s.now()
	if err := s.ledger.MarkRun(ctx, name, started); err != nil {
		s.logg.Error(jobCtx, "record cron job run", err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", name, rec)
		}
		elapsed := time.Since(started)
		s.metrics.Observe(name, elapsed, err)
		jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
		if err != nil {
			s.logg.Error(jobCtx, "cron job failed", err)
			err = fmt.Errorf("%s: %w", name, err)
			return
		}
		s.logg.Debug(jobCtx, "cron job completed")
	}()

	return job.Run(jobCtx)
}
