package partitions

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron"

	"github.com/yungbote/docforge-backend/internal/platform/logger"
)

// DefaultSchedule is daily at 02:00:00, seconds first.
const DefaultSchedule = "0 0 2 * * *"

// ValidateSchedule reports whether expr is a six-field cron expression.
func ValidateSchedule(expr string) error {
	if _, err := cron.Parse(expr); err != nil {
		return fmt.Errorf("invalid partition schedule %q: %w", expr, err)
	}
	return nil
}

type Scheduler struct {
	log  *logger.Logger
	m    *Maintainer
	expr string
	cron *cron.Cron

	stopOnce sync.Once
}

func NewScheduler(baseLog *logger.Logger, m *Maintainer, expr string) (*Scheduler, error) {
	if expr == "" {
		expr = DefaultSchedule
	}
	if err := ValidateSchedule(expr); err != nil {
		return nil, err
	}
	return &Scheduler{
		log:  baseLog.With("component", "PartitionScheduler"),
		m:    m,
		expr: expr,
		cron: cron.New(),
	}, nil
}

// Start runs maintenance once now, then on every tick of the schedule, until
// Stop. ctx bounds each run, not the schedule.
func (s *Scheduler) Start(ctx context.Context) error {
	run := func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.m.Run(ctx); err != nil {
			s.log.Warn("Scheduled partition maintenance failed", "error", err)
		}
	}
	if err := s.cron.AddFunc(s.expr, run); err != nil {
		return fmt.Errorf("schedule partition maintenance: %w", err)
	}
	go run()
	s.cron.Start()
	s.log.Info("Partition maintenance scheduled", "schedule", s.expr)
	return nil
}

// Stop halts the schedule. cron.Cron.Stop must not run twice, so only the
// first call reaches it; later and concurrent calls return once it is done.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(s.cron.Stop)
}
