// Package storage defines the record store the recurrence engine persists
// through, and its SQLite implementation.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// RuleStore persists recurrence rules.
type RuleStore interface {
	// ListRuleOwners returns every user that owns at least one active rule.
	ListRuleOwners(ctx context.Context) ([]uuid.UUID, error)
	ListActiveRules(ctx context.Context, userID uuid.UUID) ([]core.RecurrenceRule, error)
	ListRules(ctx context.Context, userID uuid.UUID) ([]core.RecurrenceRule, error)
	GetRule(ctx context.Context, id uuid.UUID) (core.RecurrenceRule, error)
	CreateRule(ctx context.Context, rule core.RecurrenceRule) (uuid.UUID, error)
	SetRuleActive(ctx context.Context, id uuid.UUID, active bool) error
	// DeleteRule removes the rule. Its transactions lose their back-reference.
	DeleteRule(ctx context.Context, id uuid.UUID) error
	UpdateRuleLastGenerated(ctx context.Context, id uuid.UUID, date core.Date) error
}

// TransactionStore persists ledger entries. InsertTransaction returns
// ErrConflict when the rule already has a transaction on that date.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, tx core.Transaction) (uuid.UUID, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error)
	ListTransactionsByRule(ctx context.Context, ruleID uuid.UUID) ([]core.Transaction, error)
}

// ApprovalStore persists pending approvals, at most one per (rule, date).
type ApprovalStore interface {
	// InsertPendingApproval returns ErrConflict for a duplicate (rule, date).
	InsertPendingApproval(ctx context.Context, pa core.PendingApproval) (uuid.UUID, error)
	// FindPendingApproval returns the record for (rule, date) whatever its
	// status, or ErrNotFound.
	FindPendingApproval(ctx context.Context, ruleID uuid.UUID, date core.Date) (core.PendingApproval, error)
	GetPendingApproval(ctx context.Context, id uuid.UUID) (core.PendingApproval, error)
	// ListPendingApprovals returns the undecided approvals of a user, oldest first.
	ListPendingApprovals(ctx context.Context, userID uuid.UUID) ([]core.PendingApproval, error)
	// DecideApproval records the decision only while the approval is still
	// pending; otherwise it returns ErrNotFound.
	DecideApproval(ctx context.Context, id uuid.UUID, approved bool, at time.Time) error
}

// Store is everything the engine needs from persistence.
type Store interface {
	RuleStore
	TransactionStore
	ApprovalStore
	// Atomically runs fn against a Store whose writes commit together, or not
	// at all when fn returns an error.
	Atomically(ctx context.Context, fn func(Store) error) error
}
