package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/amaumene/debridstrm/internal/controllers"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CycleRunner runs a single poll cycle
type CycleRunner interface {
	RunCycle(ctx context.Context) (*controllers.CycleSummary, error)
}

// Scheduler runs the cycle once at startup and then on a fixed interval.
// Cycles never overlap: a tick that fires while a cycle is running is skipped.
type Scheduler struct {
	cron     *cron.Cron
	runner   CycleRunner
	interval time.Duration
	logger   *logrus.Logger

	job    cron.Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new scheduler
func NewScheduler(runner CycleRunner, interval time.Duration, logger *logrus.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cronLogger := cron.PrintfLogger(logger)

	s := &Scheduler{
		cron:     cron.New(cron.WithLogger(cronLogger)),
		runner:   runner,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	// Recover sits inside SkipIfStillRunning so a panicking cycle still releases the run slot
	s.job = cron.NewChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	).Then(cron.FuncJob(s.runCycle))
	return s
}

// Start schedules the cycle and runs the first one immediately
func (s *Scheduler) Start() {
	s.logger.WithField("interval", s.interval.String()).Info("Starting scheduler")

	s.cron.Schedule(cron.Every(s.interval), s.job)
	s.cron.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.job.Run()
	}()

	s.logger.Info("Scheduler started")
}

// Stop cancels the running cycle and waits for it to return
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) runCycle() {
	if s.ctx.Err() != nil {
		return
	}

	if _, err := s.runner.RunCycle(s.ctx); err != nil {
		s.logger.WithError(err).Error("Cycle failed")
		return
	}
	s.logger.WithField("next_in", s.interval.String()).Debug("Cycle finished, waiting for next tick")
}
