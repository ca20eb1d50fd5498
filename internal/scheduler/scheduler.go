package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const sweepTag = "conversion_sweep"

// Scheduler runs the sweep on a cron expression
type Scheduler struct {
	s       *gocron.Scheduler
	sweeper *Sweeper
	logger  *zap.Logger
}

// New creates a scheduler with one sweep job. Runs never overlap.
func New(cronExpr string, sweeper *Sweeper, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SetMaxConcurrentJobs(1, gocron.WaitMode)

	sch := &Scheduler{s: s, sweeper: sweeper, logger: logger}
	if _, err := s.Cron(cronExpr).Tag(sweepTag).Do(sch.runJob); err != nil {
		return nil, errors.Wrapf(err, "creating sweep job for %q", cronExpr)
	}
	return sch, nil
}

func (sch *Scheduler) runJob() {
	if _, err := sch.sweeper.Run(context.Background(), TriggerCron); err != nil {
		sch.logger.Error("scheduled sweep failed", zap.Error(err))
	}
}

// Start starts the scheduler in the background
func (sch *Scheduler) Start() {
	sch.logger.Info("starting scheduler", zap.Int("jobs", len(sch.s.Jobs())))
	sch.s.StartAsync()
}

// Stop stops the scheduler
func (sch *Scheduler) Stop() {
	sch.s.Stop()
}
