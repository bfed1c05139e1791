// Package scheduler runs the periodic maintenance jobs of the service.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

type Expirer interface {
	ExpireStaleOrders(ctx context.Context, ttl time.Duration) (int, error)
}

type Scheduler struct {
	cron   gocron.Scheduler
	logger *zap.Logger
}

func New(logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}
	return &Scheduler{cron: s, logger: logger}, nil
}

// ScheduleExpirySweep cancels orders left unpaid for longer than ttl, checking
// every interval. A zero ttl leaves the sweep off. Runs never overlap.
func (s *Scheduler) ScheduleExpirySweep(ctx context.Context, exp Expirer, ttl, interval time.Duration) error {
	if ttl <= 0 {
		s.logger.Info("pending payment expiry disabled")
		return nil
	}
	_, err := s.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			runCtx, cancel := context.WithTimeout(ctx, interval)
			defer cancel()
			n, err := exp.ExpireStaleOrders(runCtx, ttl)
			if err != nil {
				s.logger.Warn("expiry sweep failed", zap.Int("expired", n), zap.Error(err))
			}
		}),
		gocron.WithName("expire-pending-payments"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	s.logger.Info("pending payment expiry scheduled", zap.Duration("ttl", ttl), zap.Duration("interval", interval))
	return nil
}

func (s *Scheduler) Jobs() int {
	return len(s.cron.Jobs())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Shutdown() error {
	return s.cron.Shutdown()
}
