// Package storetest is a behavioural suite every storage.Store must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// NewRule returns a valid monthly rule owned by userID.
func NewRule(userID uuid.UUID) core.RecurrenceRule {
	return core.RecurrenceRule{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      decimal.RequireFromString("1200.00"),
		Description: "rent",
		Kind:        core.KindExpense,
		Frequency:   core.FrequencyMonthly,
		DayOfMonth:  core.IntPtr(31),
		IsActive:    true,
		StartDate:   core.NewDate(2024, 1, 1),
	}
}

// Run exercises newStore against the Store contract.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("rule round trip", func(t *testing.T) { testRuleRoundTrip(t, newStore(t)) })
	t.Run("active rules and owners", func(t *testing.T) { testActiveRules(t, newStore(t)) })
	t.Run("missing rows", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("transaction uniqueness", func(t *testing.T) { testTransactionUniqueness(t, newStore(t)) })
	t.Run("approval uniqueness", func(t *testing.T) { testApprovalUniqueness(t, newStore(t)) })
	t.Run("decide once", func(t *testing.T) { testDecideOnce(t, newStore(t)) })
	t.Run("atomically rolls back", func(t *testing.T) { testAtomicRollback(t, newStore(t)) })
	t.Run("delete rule keeps transactions", func(t *testing.T) { testDeleteRule(t, newStore(t)) })
}

func testRuleRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	rule := NewRule(uuid.New())
	rule.CategoryID = uuid.NullUUID{UUID: uuid.New(), Valid: true}
	rule.EndDate = core.NewDate(2024, 12, 31)
	rule.RequiresApproval = true

	id, err := s.CreateRule(ctx, rule)
	require.NoError(t, err)
	assert.Equal(t, rule.ID, id)

	got, err := s.GetRule(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rule.UserID, got.UserID)
	assert.Equal(t, rule.CategoryID, got.CategoryID)
	assert.True(t, rule.Amount.Equal(got.Amount), "amount %s != %s", got.Amount, rule.Amount)
	assert.Equal(t, core.FrequencyMonthly, got.Frequency)
	assert.Equal(t, core.KindExpense, got.Kind)
	require.NotNil(t, got.DayOfMonth)
	assert.Equal(t, 31, *got.DayOfMonth)
	assert.Nil(t, got.DayOfWeek)
	assert.True(t, got.RequiresApproval)
	assert.Equal(t, "2024-01-01", got.StartDate.String())
	assert.Equal(t, "2024-12-31", got.EndDate.String())
	assert.True(t, got.LastGeneratedDate.IsZero())

	require.NoError(t, s.UpdateRuleLastGenerated(ctx, id, core.NewDate(2024, 1, 31)))
	got, err = s.GetRule(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-31", got.LastGeneratedDate.String())
}

func testActiveRules(t *testing.T, s storage.Store) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	a1 := NewRule(alice)
	a2 := NewRule(alice)
	a2.StartDate = core.NewDate(2024, 3, 1)
	b1 := NewRule(bob)
	for _, r := range []core.RecurrenceRule{a1, a2, b1} {
		_, err := s.CreateRule(ctx, r)
		require.NoError(t, err)
	}
	require.NoError(t, s.SetRuleActive(ctx, b1.ID, false))

	active, err := s.ListActiveRules(ctx, alice)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, a1.ID, active[0].ID)
	assert.Equal(t, a2.ID, active[1].ID)

	active, err = s.ListActiveRules(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := s.ListRules(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	owners, err := s.ListRuleOwners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{alice}, owners)
}

func testNotFound(t *testing.T, s storage.Store) {
	ctx := context.Background()
	missing := uuid.New()

	_, err := s.GetRule(ctx, missing)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetTransaction(ctx, missing)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetPendingApproval(ctx, missing)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.FindPendingApproval(ctx, missing, core.NewDate(2024, 1, 1))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.UpdateRuleLastGenerated(ctx, missing, core.NewDate(2024, 1, 1)), storage.ErrNotFound)
	assert.ErrorIs(t, s.SetRuleActive(ctx, missing, true), storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteRule(ctx, missing), storage.ErrNotFound)
	assert.ErrorIs(t, s.DecideApproval(ctx, missing, true, time.Now()), storage.ErrNotFound)
}

func testTransactionUniqueness(t *testing.T, s storage.Store) {
	ctx := context.Background()
	rule := NewRule(uuid.New())
	_, err := s.CreateRule(ctx, rule)
	require.NoError(t, err)

	day := core.NewDate(2024, 1, 31)
	id, err := s.InsertTransaction(ctx, rule.TransactionFor(day))
	require.NoError(t, err)

	_, err = s.InsertTransaction(ctx, rule.TransactionFor(day))
	assert.ErrorIs(t, err, storage.ErrConflict)

	_, err = s.InsertTransaction(ctx, rule.TransactionFor(day.AddDays(29)))
	assert.NoError(t, err)

	manual := core.Transaction{UserID: rule.UserID, Amount: decimal.NewFromInt(5), Kind: core.KindIncome, Date: day}
	_, err = s.InsertTransaction(ctx, manual)
	assert.NoError(t, err)
	_, err = s.InsertTransaction(ctx, manual)
	assert.NoError(t, err, "transactions without a rule are not constrained")

	got, err := s.GetTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-31", got.Date.String())
	assert.Equal(t, uuid.NullUUID{UUID: rule.ID, Valid: true}, got.RecurringRuleID)
	assert.True(t, got.Amount.Equal(rule.Amount))

	txs, err := s.ListTransactionsByRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func testApprovalUniqueness(t *testing.T, s storage.Store) {
	ctx := context.Background()
	rule := NewRule(uuid.New())
	rule.RequiresApproval = true
	_, err := s.CreateRule(ctx, rule)
	require.NoError(t, err)

	day := core.NewDate(2024, 1, 31)
	pa := core.PendingApproval{UserID: rule.UserID, RuleID: rule.ID, ScheduledDate: day}
	id, err := s.InsertPendingApproval(ctx, pa)
	require.NoError(t, err)

	_, err = s.InsertPendingApproval(ctx, pa)
	assert.ErrorIs(t, err, storage.ErrConflict)

	found, err := s.FindPendingApproval(ctx, rule.ID, day)
	require.NoError(t, err)
	assert.Equal(t, id, found.ID)
	assert.Nil(t, found.IsApproved)
	assert.Equal(t, core.ApprovalPending, found.Status())

	open, err := s.ListPendingApprovals(ctx, rule.UserID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, id, open[0].ID)
}

func testDecideOnce(t *testing.T, s storage.Store) {
	ctx := context.Background()
	rule := NewRule(uuid.New())
	_, err := s.CreateRule(ctx, rule)
	require.NoError(t, err)

	id, err := s.InsertPendingApproval(ctx, core.PendingApproval{
		UserID: rule.UserID, RuleID: rule.ID, ScheduledDate: core.NewDate(2024, 2, 29),
	})
	require.NoError(t, err)

	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.DecideApproval(ctx, id, false, at))
	assert.ErrorIs(t, s.DecideApproval(ctx, id, true, at), storage.ErrNotFound)

	got, err := s.GetPendingApproval(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.ApprovalRejected, got.Status())
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, at.Equal(*got.ApprovedAt), "approved_at %v != %v", *got.ApprovedAt, at)

	open, err := s.ListPendingApprovals(ctx, rule.UserID)
	require.NoError(t, err)
	assert.Empty(t, open)

	// a decided record still blocks the same (rule, date)
	_, err = s.FindPendingApproval(ctx, rule.ID, core.NewDate(2024, 2, 29))
	assert.NoError(t, err)
}

func testAtomicRollback(t *testing.T, s storage.Store) {
	ctx := context.Background()
	rule := NewRule(uuid.New())
	_, err := s.CreateRule(ctx, rule)
	require.NoError(t, err)

	day := core.NewDate(2024, 1, 31)
	err = s.Atomically(ctx, func(tx storage.Store) error {
		if _, err := tx.InsertTransaction(ctx, rule.TransactionFor(day)); err != nil {
			return err
		}
		if err := tx.UpdateRuleLastGenerated(ctx, rule.ID, day); err != nil {
			return err
		}
		return tx.UpdateRuleLastGenerated(ctx, uuid.New(), day)
	})
	require.ErrorIs(t, err, storage.ErrNotFound)

	txs, err := s.ListTransactionsByRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
	got, err := s.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.True(t, got.LastGeneratedDate.IsZero())

	err = s.Atomically(ctx, func(tx storage.Store) error {
		_, err := tx.InsertTransaction(ctx, rule.TransactionFor(day))
		return err
	})
	require.NoError(t, err)
	txs, err = s.ListTransactionsByRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func testDeleteRule(t *testing.T, s storage.Store) {
	ctx := context.Background()
	rule := NewRule(uuid.New())
	_, err := s.CreateRule(ctx, rule)
	require.NoError(t, err)
	txID, err := s.InsertTransaction(ctx, rule.TransactionFor(core.NewDate(2024, 1, 31)))
	require.NoError(t, err)

	require.NoError(t, s.DeleteRule(ctx, rule.ID))

	_, err = s.GetRule(ctx, rule.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	tx, err := s.GetTransaction(ctx, txID)
	require.NoError(t, err)
	assert.False(t, tx.RecurringRuleID.Valid)
}
