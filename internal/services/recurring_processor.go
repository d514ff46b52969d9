package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"fintrack/internal/core"
	"fintrack/internal/lock"
	"fintrack/internal/log"
	"fintrack/internal/recurrence"
	"fintrack/internal/storage"
)

// DefaultStorageTimeout bounds every storage call made by the processor.
const DefaultStorageTimeout = 5 * time.Second

// Outcome describes what a tick did with one due rule.
type Outcome string

const (
	OutcomeCreated           Outcome = "transaction_created"
	OutcomeAlreadyCreated    Outcome = "already_materialized"
	OutcomeApprovalRequested Outcome = "approval_requested"
	OutcomeApprovalExists    Outcome = "approval_exists"
	OutcomeFailed            Outcome = "failed"
)

// RuleResult is the outcome of materializing one due rule.
type RuleResult struct {
	RuleID        uuid.UUID
	UserID        uuid.UUID
	Date          core.Date
	Outcome       Outcome
	TransactionID uuid.UUID
	ApprovalID    uuid.UUID
	Err           error
}

// TickReport summarizes one processing tick.
type TickReport struct {
	Date           core.Date
	Checked        int
	Due            int
	Created        int
	PendingCreated int
	Duplicates     int
	Failed         int
	// SkippedUsers counts users whose lock was held elsewhere.
	SkippedUsers int
	Results      []RuleResult
}

func (r *TickReport) add(res RuleResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeApprovalRequested:
		r.PendingCreated++
	case OutcomeAlreadyCreated, OutcomeApprovalExists:
		r.Duplicates++
	case OutcomeFailed:
		r.Failed++
	}
}

func (r *TickReport) merge(o TickReport) {
	r.Checked += o.Checked
	r.Due += o.Due
	r.Created += o.Created
	r.PendingCreated += o.PendingCreated
	r.Duplicates += o.Duplicates
	r.Failed += o.Failed
	r.SkippedUsers += o.SkippedUsers
	r.Results = append(r.Results, o.Results...)
}

// RecurringProcessor materializes due occurrences of recurrence rules and
// handles the approve/reject decisions on pending approvals.
type RecurringProcessor struct {
	store          storage.Store
	notifier       Notifier
	locker         Locker
	storageTimeout time.Duration
	clock          func() time.Time
	gate           singleflight.Group
}

// Option configures a RecurringProcessor.
type Option func(*RecurringProcessor)

func WithNotifier(n Notifier) Option {
	return func(p *RecurringProcessor) {
		if n != nil {
			p.notifier = n
		}
	}
}

func WithLocker(l Locker) Option {
	return func(p *RecurringProcessor) {
		if l != nil {
			p.locker = l
		}
	}
}

func WithStorageTimeout(d time.Duration) Option {
	return func(p *RecurringProcessor) { p.storageTimeout = d }
}

// WithClock sets the source of decision timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *RecurringProcessor) {
		if now != nil {
			p.clock = now
		}
	}
}

// NewRecurringProcessor creates a processor over store.
func NewRecurringProcessor(store storage.Store, opts ...Option) *RecurringProcessor {
	p := &RecurringProcessor{
		store:          store,
		notifier:       nopNotifier{},
		locker:         lock.NewLocal(),
		storageTimeout: DefaultStorageTimeout,
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *RecurringProcessor) storageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.storageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.storageTimeout)
}

// ProcessDueRules materializes every rule in rules that is due on today.
// A failing rule never stops the batch: its error is recorded in the report
// and joined into the returned error, and its marker is left untouched so the
// next tick retries it.
func (p *RecurringProcessor) ProcessDueRules(ctx context.Context, rules []core.RecurrenceRule, today core.Date) (TickReport, error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentRecurrence)
	report := TickReport{Date: today}
	var errs []error

	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		report.Checked++
		if !recurrence.IsDueToday(rule, today) {
			continue
		}
		report.Due++

		var res RuleResult
		if rule.RequiresApproval {
			res = p.requestApproval(ctx, rule, today)
		} else {
			res = p.materialize(ctx, rule, today)
		}
		report.add(res)

		if res.Err != nil {
			logger.ErrorContext(ctx, "Failed to materialize recurring rule",
				log.FieldRuleID, rule.ID,
				log.FieldUserID, rule.UserID,
				log.FieldDate, today.String(),
				log.FieldError, res.Err)
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.ID, res.Err))
			continue
		}
		logger.InfoContext(ctx, "Materialized recurring rule",
			log.FieldRuleID, rule.ID,
			log.FieldFrequency, rule.Frequency,
			log.FieldOutcome, res.Outcome,
			log.FieldAmount, core.FormatAmount(rule.Amount))
	}

	logger.InfoContext(ctx, "Recurring rule processing complete",
		log.FieldDate, today.String(),
		log.FieldChecked, report.Checked,
		log.FieldDue, report.Due,
		log.FieldCreated, report.Created,
		log.FieldPendingCreated, report.PendingCreated,
		log.FieldFailed, report.Failed)

	return report, errors.Join(errs...)
}

// materialize inserts today's transaction and stamps the marker as one unit
// of work. A transaction that already exists for (rule, today) counts as
// materialized and only the marker is stamped.
func (p *RecurringProcessor) materialize(ctx context.Context, rule core.RecurrenceRule, today core.Date) RuleResult {
	res := RuleResult{RuleID: rule.ID, UserID: rule.UserID, Date: today}
	tx := rule.TransactionFor(today)

	sctx, cancel := p.storageCtx(ctx)
	defer cancel()
	err := p.store.Atomically(sctx, func(s storage.Store) error {
		id, err := s.InsertTransaction(sctx, tx)
		switch {
		case storage.IsConflict(err):
			res.Outcome = OutcomeAlreadyCreated
		case err != nil:
			return fmt.Errorf("insert transaction: %w", err)
		default:
			res.Outcome = OutcomeCreated
			res.TransactionID = id
		}
		if err := s.UpdateRuleLastGenerated(sctx, rule.ID, today); err != nil {
			return fmt.Errorf("stamp last generated date: %w", err)
		}
		return nil
	})
	if err != nil {
		return RuleResult{RuleID: rule.ID, UserID: rule.UserID, Date: today, Outcome: OutcomeFailed, Err: err}
	}

	if res.Outcome == OutcomeCreated {
		tx.ID = res.TransactionID
		p.publishTransaction(ctx, tx)
	}
	return res
}

// requestApproval creates the PendingApproval for (rule, today) unless one
// exists. The rule marker is not stamped on this path; the (rule, date)
// record is the idempotency guard.
func (p *RecurringProcessor) requestApproval(ctx context.Context, rule core.RecurrenceRule, today core.Date) RuleResult {
	res := RuleResult{RuleID: rule.ID, UserID: rule.UserID, Date: today}
	sctx, cancel := p.storageCtx(ctx)
	defer cancel()

	existing, err := p.store.FindPendingApproval(sctx, rule.ID, today)
	switch {
	case err == nil:
		res.Outcome = OutcomeApprovalExists
		res.ApprovalID = existing.ID
		return res
	case !storage.IsNotFound(err):
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("find pending approval: %w", err)
		return res
	}

	pa := core.PendingApproval{UserID: rule.UserID, RuleID: rule.ID, ScheduledDate: today}
	id, err := p.store.InsertPendingApproval(sctx, pa)
	switch {
	case storage.IsConflict(err):
		res.Outcome = OutcomeApprovalExists
		return res
	case err != nil:
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("insert pending approval: %w", err)
		return res
	}

	res.Outcome = OutcomeApprovalRequested
	res.ApprovalID = id
	pa.ID = id
	if err := p.notifier.PublishApprovalRequested(ctx, pa); err != nil {
		log.FromContext(ctx).WithComponent(log.ComponentRecurrence).WarnContext(ctx, "Failed to publish approval request",
			log.FieldApprovalID, id,
			log.FieldError, err)
	}
	return res
}

func (p *RecurringProcessor) publishTransaction(ctx context.Context, tx core.Transaction) {
	if err := p.notifier.PublishTransactionCreated(ctx, tx); err != nil {
		log.FromContext(ctx).WithComponent(log.ComponentRecurrence).WarnContext(ctx, "Failed to publish transaction created",
			log.FieldTransactionID, tx.ID,
			log.FieldError, err)
	}
}

func lockKey(userID uuid.UUID) string {
	return "fintrack:materialize:" + userID.String()
}

// ProcessUser runs one tick over the active rules of userID. Overlapping
// calls for the same user and day share a single run, and the per-user lock
// keeps other processes out; when the lock is held elsewhere the user is
// skipped for this tick.
func (p *RecurringProcessor) ProcessUser(ctx context.Context, userID uuid.UUID, today core.Date) (TickReport, error) {
	key := lockKey(userID)
	v, err, shared := p.gate.Do(key+":"+today.String(), func() (any, error) {
		release, err := p.locker.Obtain(ctx, key)
		if errors.Is(err, lock.ErrNotObtained) {
			log.FromContext(ctx).WithComponent(log.ComponentLock).InfoContext(ctx, "Materialization already running elsewhere, skipping",
				log.FieldUserID, userID)
			return TickReport{Date: today, SkippedUsers: 1}, nil
		}
		if err != nil {
			return TickReport{Date: today}, fmt.Errorf("obtain lock for user %s: %w", userID, err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.FromContext(ctx).WithComponent(log.ComponentLock).WarnContext(ctx, "Failed to release lock",
					log.FieldUserID, userID,
					log.FieldError, err)
			}
		}()

		sctx, cancel := p.storageCtx(ctx)
		rules, err := p.store.ListActiveRules(sctx, userID)
		cancel()
		if err != nil {
			return TickReport{Date: today}, fmt.Errorf("list active rules for user %s: %w", userID, err)
		}
		return p.ProcessDueRules(ctx, rules, today)
	})
	if shared {
		log.FromContext(ctx).DebugContext(ctx, "Joined in-flight tick", log.FieldUserID, userID)
	}
	report, _ := v.(TickReport)
	return report, err
}

// ProcessAll runs a tick for every user that owns an active rule.
func (p *RecurringProcessor) ProcessAll(ctx context.Context, today core.Date) (TickReport, error) {
	total := TickReport{Date: today}

	sctx, cancel := p.storageCtx(ctx)
	owners, err := p.store.ListRuleOwners(sctx)
	cancel()
	if err != nil {
		return total, fmt.Errorf("list rule owners: %w", err)
	}

	var errs []error
	for _, userID := range owners {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := p.ProcessUser(ctx, userID, today)
		total.merge(report)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// UpcomingOccurrences projects the next count occurrences of a rule without
// changing anything.
func (p *RecurringProcessor) UpcomingOccurrences(ctx context.Context, ruleID uuid.UUID, today core.Date, count int) ([]core.Occurrence, error) {
	sctx, cancel := p.storageCtx(ctx)
	defer cancel()
	rule, err := p.store.GetRule(sctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("get rule %s: %w", ruleID, err)
	}
	return recurrence.Project(rule, today, count), nil
}
