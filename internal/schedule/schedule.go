// Package schedule runs a job on a standard 5-field cron expression
// (minute hour day-of-month month day-of-week). Examples: "0 9 * * *"
// (daily 9am), "0 9 * * 1-5" (weekdays 9am), "*/30 * * * *" (every half hour).
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var ErrNoSchedule = errors.New("cron expression not set")

type Job func(ctx context.Context) error

func Parse(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, ErrNoSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// NextRuns lists the next n activation times after from.
func NextRuns(expr string, from time.Time, n int) ([]time.Time, error) {
	sched, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, n)
	t := from
	for range n {
		t = sched.Next(t)
		out = append(out, t)
	}
	return out, nil
}

type Scheduler struct {
	Schedule cron.Schedule
	Name     string
	Job      Job
	Logger   *zap.Logger
	Location *time.Location

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func New(expr, name string, job Job, logger *zap.Logger) (*Scheduler, error) {
	sched, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{Schedule: sched, Name: name, Job: job, Logger: logger}, nil
}

// Run blocks until ctx is cancelled, firing the job at each activation.
// Job errors are logged and the loop continues.
func (s *Scheduler) Run(ctx context.Context) error {
	now := s.now
	if now == nil {
		now = time.Now
	}
	after := s.after
	if after == nil {
		after = time.After
	}
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		current := now().In(loc)
		next := s.Schedule.Next(current)
		wait := next.Sub(current)
		s.Logger.Info("next scheduled run",
			zap.String("job", s.Name),
			zap.String("at", next.Format("Mon Jan 2 15:04")),
			zap.Duration("in", wait.Round(time.Minute)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-after(wait):
		}

		start := now()
		if err := s.Job(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.Logger.Error("scheduled run failed", zap.String("job", s.Name), zap.Error(err))
			continue
		}
		s.Logger.Info("scheduled run complete", zap.String("job", s.Name), zap.Duration("took", now().Sub(start)))
	}
}
