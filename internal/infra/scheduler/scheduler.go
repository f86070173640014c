// Package scheduler triggers the budget alert sweep on a cron schedule and
// on demand, never running two sweeps at once within the process.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

// DefaultSpec runs every six hours on the hour.
const DefaultSpec = "0 */6 * * *"

const sweepKey = "budget-alerts"

// SweepFunc runs one sweep.
type SweepFunc func(ctx context.Context) (*domain.SweepReport, error)

// Scheduler owns the cron runner for the sweep.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	sweep   SweepFunc
	group   singleflight.Group
	timeout time.Duration
	logger  *zap.Logger
}

// New validates spec (standard five-field cron, evaluated in UTC) and
// returns an idle scheduler. timeout bounds a single sweep; zero means none.
func New(spec string, sweep SweepFunc, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cl)),
			cron.WithLogger(cl),
		),
		spec:    spec,
		sweep:   sweep,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Start registers the job and blocks until ctx is done, then waits for a
// running sweep to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		report, shared, err := s.Trigger(ctx)
		if err != nil {
			s.logger.Error("scheduler: budget alert sweep failed", zap.Error(err))
			return
		}
		if shared {
			s.logger.Info("scheduler: joined sweep already in progress")
			return
		}
		s.logger.Info("scheduler: budget alert sweep finished",
			zap.Int("evaluated", report.Evaluated),
			zap.Int("alerted", report.Alerted),
		)
	})
	if err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler: started", zap.String("spec", s.spec))

	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("scheduler: stopped")
	return nil
}

// Trigger runs a sweep now. A caller arriving while a sweep is in flight
// waits for it and receives the same report with shared set.
func (s *Scheduler) Trigger(ctx context.Context) (report *domain.SweepReport, shared bool, err error) {
	v, err, shared := s.group.Do(sweepKey, func() (any, error) {
		runCtx := context.WithoutCancel(ctx)
		if s.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, s.timeout)
			defer cancel()
		}
		return s.sweep(runCtx)
	})
	if err != nil {
		return nil, shared, err
	}
	return v.(*domain.SweepReport), shared, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
