package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// TickProcessor runs one materialization pass for a calendar day.
type TickProcessor interface {
	ProcessAll(ctx context.Context, today core.Date) (services.TickReport, error)
}

// RecurringScheduler runs a tick on startup, on every interval and whenever
// Notify is called.
type RecurringScheduler struct {
	processor TickProcessor
	interval  time.Duration
	loc       *time.Location
	now       func() time.Time
	trigger   chan struct{}
}

func NewRecurringScheduler(p TickProcessor, interval time.Duration, loc *time.Location) *RecurringScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &RecurringScheduler{
		processor: p,
		interval:  interval,
		loc:       loc,
		now:       time.Now,
		trigger:   make(chan struct{}, 1),
	}
}

// Notify requests an extra tick. It never blocks; requests made while one
// is already queued are merged.
func (s *RecurringScheduler) Notify() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done.
func (s *RecurringScheduler) Run(ctx context.Context) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentWorker)
	logger.InfoContext(ctx, "Recurring scheduler started", "interval", s.interval, "timezone", s.loc.String())

	s.Tick(ctx, "startup")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "Recurring scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx, "interval")
		case <-s.trigger:
			s.Tick(ctx, "signal")
		}
	}
}

// Tick runs one pass for today in the scheduler's timezone.
func (s *RecurringScheduler) Tick(ctx context.Context, reason string) services.TickReport {
	today := core.Today(s.now(), s.loc)
	logger := log.FromContext(ctx).WithComponent(log.ComponentWorker).With(
		log.FieldTickID, uuid.NewString(),
		log.FieldDate, today.String())
	ctx = log.NewContext(ctx, logger)

	start := time.Now()
	report, err := s.processor.ProcessAll(ctx, today)
	if err != nil {
		logger.ErrorContext(ctx, "Recurring tick finished with errors",
			"reason", reason,
			log.FieldFailed, report.Failed,
			log.FieldError, err)
	}
	logger.InfoContext(ctx, "Recurring tick complete",
		"reason", reason,
		log.FieldChecked, report.Checked,
		log.FieldCreated, report.Created,
		log.FieldPendingCreated, report.PendingCreated,
		"skipped_users", report.SkippedUsers,
		log.FieldDuration, time.Since(start).Milliseconds())
	return report
}
