package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"
)

func pendingFixture(t *testing.T) (*RecurringProcessor, *memory.Store, *recordingNotifier, core.RecurrenceRule, core.PendingApproval) {
	t.Helper()
	p, store, notifier := newFixture()
	rule := weeklyRule(uuid.New(), true)
	mustCreate(store, rule)

	_, err := p.ProcessDueRules(context.Background(), []core.RecurrenceRule{rule}, monday)
	require.NoError(t, err)
	pending, err := p.ListPending(context.Background(), rule.UserID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	return p, store, notifier, rule, pending[0]
}

func TestApprove(t *testing.T) {
	p, store, notifier, rule, pa := pendingFixture(t)
	ctx := context.Background()

	// approve a few days later: the transaction keeps the scheduled date
	tx, err := p.Approve(ctx, pa.ID)
	require.NoError(t, err)
	assert.Equal(t, monday.String(), tx.Date.String())
	assert.Equal(t, uuid.NullUUID{UUID: rule.ID, Valid: true}, tx.RecurringRuleID)
	assert.NotEqual(t, uuid.Nil, tx.ID)

	got, err := store.GetPendingApproval(ctx, pa.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ApprovalApproved, got.Status())
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, fixedNow.Equal(*got.ApprovedAt))

	r, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, monday.String(), r.LastGeneratedDate.String())

	txs, err := store.ListTransactionsByRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	require.Len(t, notifier.txs, 1)

	_, err = p.Approve(ctx, pa.ID)
	assert.ErrorIs(t, err, ErrAlreadyDecided)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	txs, err = store.ListTransactionsByRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1, "second approve must not create a transaction")
}

func TestApprove_Unknown(t *testing.T) {
	p, _, _ := newFixture()
	_, err := p.Approve(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NotErrorIs(t, err, ErrAlreadyDecided)
}

func TestApprove_PartialFailureRollsBack(t *testing.T) {
	p, store, _, rule, pa := pendingFixture(t)
	ctx := context.Background()
	store.InjectFault(memory.OpUpdateRuleLastGenerated, storage.NewError("update rule marker", storage.ErrUnavailable, nil))

	_, err := p.Approve(ctx, pa.ID)
	require.ErrorIs(t, err, storage.ErrUnavailable)

	got, err := store.GetPendingApproval(ctx, pa.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ApprovalPending, got.Status(), "approval stays pending when the unit fails")
	txs, err := store.ListTransactionsByRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)

	_, err = p.Approve(ctx, pa.ID)
	require.NoError(t, err)
}

func TestApprove_ExistingTransactionIsReused(t *testing.T) {
	p, store, notifier, rule, pa := pendingFixture(t)
	ctx := context.Background()
	existingID, err := store.InsertTransaction(ctx, rule.TransactionFor(monday))
	require.NoError(t, err)

	tx, err := p.Approve(ctx, pa.ID)
	require.NoError(t, err)
	assert.Equal(t, existingID, tx.ID)
	assert.Empty(t, notifier.txs)
}

func TestReject(t *testing.T) {
	p, store, notifier, rule, pa := pendingFixture(t)
	ctx := context.Background()

	require.NoError(t, p.Reject(ctx, pa.ID))

	got, err := store.GetPendingApproval(ctx, pa.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ApprovalRejected, got.Status())

	r, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.True(t, r.LastGeneratedDate.IsZero(), "reject leaves the marker alone")

	assert.ErrorIs(t, p.Reject(ctx, pa.ID), ErrAlreadyDecided)
	_, err = p.Approve(ctx, pa.ID)
	assert.ErrorIs(t, err, ErrAlreadyDecided)

	// the rejected date is not offered again
	report, err := p.ProcessDueRules(ctx, []core.RecurrenceRule{r}, monday)
	require.NoError(t, err)
	assert.Equal(t, 0, report.PendingCreated)

	// the next occurrence is
	report, err = p.ProcessDueRules(ctx, []core.RecurrenceRule{r}, monday.AddDays(7))
	require.NoError(t, err)
	assert.Equal(t, 1, report.PendingCreated)
	assert.Len(t, notifier.approvals, 2)

	txs, err := store.ListTransactionsByRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}
