package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// ErrAlreadyDecided is returned when approving or rejecting an approval that
// is no longer pending. It matches storage.ErrNotFound.
var ErrAlreadyDecided = fmt.Errorf("%w: approval already decided", storage.ErrNotFound)

// Approve materializes the occurrence behind a pending approval. The
// transaction is dated at the scheduled date, the approval becomes approved
// and the rule's marker moves to the scheduled date, all in one unit of work.
func (p *RecurringProcessor) Approve(ctx context.Context, approvalID uuid.UUID) (core.Transaction, error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentApproval)
	sctx, cancel := p.storageCtx(ctx)
	defer cancel()

	var (
		result   core.Transaction
		inserted bool
	)
	err := p.store.Atomically(sctx, func(s storage.Store) error {
		pa, err := s.GetPendingApproval(sctx, approvalID)
		if err != nil {
			return fmt.Errorf("load approval %s: %w", approvalID, err)
		}
		if !pa.IsPending() {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyDecided, approvalID, pa.Status())
		}
		rule, err := s.GetRule(sctx, pa.RuleID)
		if err != nil {
			return fmt.Errorf("load rule %s: %w", pa.RuleID, err)
		}

		if err := s.DecideApproval(sctx, approvalID, true, p.clock()); err != nil {
			if storage.IsNotFound(err) {
				return fmt.Errorf("%w: %s", ErrAlreadyDecided, approvalID)
			}
			return fmt.Errorf("mark approved: %w", err)
		}

		tx := rule.TransactionFor(pa.ScheduledDate)
		id, err := s.InsertTransaction(sctx, tx)
		switch {
		case storage.IsConflict(err):
			existing, findErr := findRuleTransaction(sctx, s, rule.ID, pa.ScheduledDate)
			if findErr != nil {
				return fmt.Errorf("load existing transaction: %w", findErr)
			}
			tx = existing
		case err != nil:
			return fmt.Errorf("insert transaction: %w", err)
		default:
			tx.ID = id
			inserted = true
		}

		if err := s.UpdateRuleLastGenerated(sctx, rule.ID, pa.ScheduledDate); err != nil {
			return fmt.Errorf("stamp last generated date: %w", err)
		}
		result = tx
		return nil
	})
	if err != nil {
		logger.WarnContext(ctx, "Approval failed", log.FieldApprovalID, approvalID, log.FieldError, err)
		return core.Transaction{}, err
	}

	logger.InfoContext(ctx, "Approval accepted",
		log.FieldApprovalID, approvalID,
		log.FieldTransactionID, result.ID,
		log.FieldScheduledDate, result.Date.String())
	if inserted {
		p.publishTransaction(ctx, result)
	}
	return result, nil
}

func findRuleTransaction(ctx context.Context, s storage.Store, ruleID uuid.UUID, date core.Date) (core.Transaction, error) {
	txs, err := s.ListTransactionsByRule(ctx, ruleID)
	if err != nil {
		return core.Transaction{}, err
	}
	for _, tx := range txs {
		if tx.Date.Equal(date) {
			return tx, nil
		}
	}
	return core.Transaction{}, storage.NewError("find rule transaction", storage.ErrNotFound, nil)
}

// Reject declines a pending approval. The rule's marker is left alone so
// later occurrences are still offered; the decided record keeps this date
// from being offered again.
func (p *RecurringProcessor) Reject(ctx context.Context, approvalID uuid.UUID) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentApproval)
	sctx, cancel := p.storageCtx(ctx)
	defer cancel()

	pa, err := p.store.GetPendingApproval(sctx, approvalID)
	if err != nil {
		return fmt.Errorf("load approval %s: %w", approvalID, err)
	}
	if !pa.IsPending() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyDecided, approvalID, pa.Status())
	}
	if err := p.store.DecideApproval(sctx, approvalID, false, p.clock()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrAlreadyDecided, approvalID)
		}
		return fmt.Errorf("mark rejected: %w", err)
	}

	logger.InfoContext(ctx, "Approval rejected",
		log.FieldApprovalID, approvalID,
		log.FieldRuleID, pa.RuleID,
		log.FieldScheduledDate, pa.ScheduledDate.String())
	return nil
}

// ListPending returns the undecided approvals of userID, oldest first.
func (p *RecurringProcessor) ListPending(ctx context.Context, userID uuid.UUID) ([]core.PendingApproval, error) {
	sctx, cancel := p.storageCtx(ctx)
	defer cancel()
	out, err := p.store.ListPendingApprovals(sctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	return out, nil
}
