package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs a task repeatedly. The next run is computed from the moment
// the previous one finished, so runs never overlap.
type Scheduler struct {
	schedule cron.Schedule
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Scheduler from a Go duration ("15m") or a standard cron
// expression ("*/15 * * * *", "@hourly").
func New(spec string, logger *zap.Logger) (*Scheduler, error) {
	schedule, err := Parse(spec)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Parse turns a refresh setting into a cron.Schedule.
func Parse(spec string) (cron.Schedule, error) {
	if d, err := time.ParseDuration(spec); err == nil {
		if d < time.Second {
			return nil, fmt.Errorf("refresh interval %s is shorter than one second", d)
		}
		return cron.Every(d), nil
	}

	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh %q: %w", spec, err)
	}
	return schedule, nil
}

// Interval estimates the time between two runs, for advertising a refresh
// interval to calendar clients.
func Interval(schedule cron.Schedule, from time.Time) time.Duration {
	first := schedule.Next(from)
	return schedule.Next(first).Sub(first)
}

// Run executes task immediately and then on every activation of the
// schedule until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, task func(ctx context.Context)) error {
	for {
		task(ctx)

		next := s.schedule.Next(s.now())
		wait := next.Sub(s.now())
		s.logger.Info("waiting for next refresh", zap.Time("next", next), zap.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
