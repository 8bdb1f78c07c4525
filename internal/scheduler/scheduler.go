package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fundingflow/config"
	"fundingflow/internal/models"
	"fundingflow/internal/scraper"
	"fundingflow/internal/timeframe"
	"fundingflow/logger"
)

// Job is one schedulable scrape unit, usually a *scraper.Scraper.
type Job interface {
	Exchange() models.Exchange
	Run(ctx context.Context, win timeframe.Window) (scraper.Summary, error)
}

// Scheduler triggers scrape runs on a fixed cadence. The first run fires
// immediately on Start; when bootstrap is configured it covers a full year
// to backfill an empty database.
type Scheduler struct {
	cfg      config.SchedulerConfig
	jobs     []Job
	interval time.Duration
	now      func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	log     *logger.Log
}

func New(cfg config.SchedulerConfig, jobs []Job) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		jobs:     jobs,
		interval: time.Duration(cfg.IntervalSeconds) * time.Second,
		now:      time.Now,
		log:      logger.GetLogger(),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	s.log.WithComponent("scheduler").WithFields(logger.Fields{
		"mode":     s.cfg.Mode,
		"parallel": s.cfg.Parallel,
		"jobs":     len(s.jobs),
	}).Info("scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.log.WithComponent("scheduler").Info("scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	tf := s.cfg.Timeframe
	if s.cfg.BootstrapFirstRun {
		tf = timeframe.Year
	}
	s.runAll(s.ctx, tf)

	for {
		delay := s.nextDelay(s.now())
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
		}
		s.runAll(s.ctx, s.cfg.Timeframe)
	}
}

// nextDelay computes the wait before the next run: the fixed interval, or
// the time until the next wall-clock hour boundary at the configured minute.
func (s *Scheduler) nextDelay(now time.Time) time.Duration {
	if s.cfg.Mode == "hourly" {
		next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), s.cfg.HourlyAtMinute, 0, 0, now.Location())
		if !next.After(now) {
			next = next.Add(time.Hour)
		}
		return next.Sub(now)
	}
	return s.interval
}

// runAll executes every job for the given timeframe. A failing exchange is
// logged and skipped; it never blocks the others.
func (s *Scheduler) runAll(ctx context.Context, tf string) {
	win, err := timeframe.Resolve(tf, s.now())
	if err != nil {
		s.log.WithComponent("scheduler").WithError(err).Error("cannot resolve timeframe, skipping cycle")
		return
	}

	log := s.log.WithComponent("scheduler").WithFields(logger.Fields{"timeframe": tf})
	log.Info("scrape cycle started")

	if s.cfg.Parallel {
		var wg sync.WaitGroup
		for _, job := range s.jobs {
			wg.Add(1)
			go func(j Job) {
				defer wg.Done()
				s.runOne(ctx, j, win)
			}(job)
		}
		wg.Wait()
	} else {
		for _, job := range s.jobs {
			s.runOne(ctx, job, win)
		}
	}

	log.Info("scrape cycle finished")
}

func (s *Scheduler) runOne(ctx context.Context, job Job, win timeframe.Window) {
	summary, err := job.Run(ctx, win)
	if err != nil {
		s.log.WithComponent("scheduler").WithError(err).WithFields(logger.Fields{
			"exchange": job.Exchange(),
		}).Error("scrape run failed")
		return
	}
	s.log.WithComponent("scheduler").WithFields(logger.Fields{
		"exchange": summary.Exchange,
		"run_id":   summary.RunID,
		"rows":     summary.Rows,
		"failed":   summary.Failed,
	}).Info("scrape run done")
}
