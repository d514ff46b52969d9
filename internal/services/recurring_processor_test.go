package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/lock"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"
)

func activeRules(t *testing.T, store storage.Store, userID uuid.UUID) []core.RecurrenceRule {
	t.Helper()
	rules, err := store.ListActiveRules(context.Background(), userID)
	require.NoError(t, err)
	return rules
}

func TestProcessDueRules_AutoApprove(t *testing.T) {
	p, store, notifier := newFixture()
	ctx := context.Background()
	rule := weeklyRule(uuid.New(), false)
	mustCreate(store, rule)

	report, err := p.ProcessDueRules(ctx, activeRules(t, store, rule.UserID), monday)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Results, 1)
	assert.Equal(t, OutcomeCreated, report.Results[0].Outcome)

	txs, err := store.ListTransactionsByRule(ctx, rule.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, monday.String(), txs[0].Date.String())
	assert.True(t, txs[0].Amount.Equal(rule.Amount))
	assert.Equal(t, report.Results[0].TransactionID, txs[0].ID)

	got, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, monday.String(), got.LastGeneratedDate.String())

	require.Len(t, notifier.txs, 1)
	assert.Equal(t, txs[0].ID, notifier.txs[0].ID)
}

func TestProcessDueRules_SecondTickSameDayIsNoop(t *testing.T) {
	p, store, _ := newFixture()
	ctx := context.Background()
	rule := weeklyRule(uuid.New(), false)
	mustCreate(store, rule)

	_, err := p.ProcessDueRules(ctx, activeRules(t, store, rule.UserID), monday)
	require.NoError(t, err)
	report, err := p.ProcessDueRules(ctx, activeRules(t, store, rule.UserID), monday)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Due)
	txs, err := store.ListTransactionsByRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

// A stale rule list (marker not yet visible) must not produce a duplicate.
func TestProcessDueRules_ConflictCountsAsMaterialized(t *testing.T) {
	p, store, notifier := newFixture()
	ctx := context.Background()
	rule := weeklyRule(uuid.New(), false)
	mustCreate(store, rule)
	stale := activeRules(t, store, rule.UserID)

	_, err := p.ProcessDueRules(ctx, stale, monday)
	require.NoError(t, err)
	report, err := p.ProcessDueRules(ctx, stale, monday)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, OutcomeAlreadyCreated, report.Results[0].Outcome)

	txs, err := store.ListTransactionsByRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Len(t, notifier.txs, 1, "duplicates are not announced")
}

func TestProcessDueRules_FailureIsIsolatedPerRule(t *testing.T) {
	p, store, _ := newFixture()
	ctx := context.Background()
	userID := uuid.New()
	first, second := weeklyRule(userID, false), weeklyRule(userID, false)
	mustCreate(store, first, second)

	store.InjectFault(memory.OpInsertTransaction,
		storage.NewError("insert transaction", storage.ErrUnavailable, errors.New("disk busy")))

	report, err := p.ProcessDueRules(ctx, []core.RecurrenceRule{first, second}, monday)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.Contains(t, err.Error(), first.ID.String())
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Created)

	failed, err := store.GetRule(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, failed.LastGeneratedDate.IsZero(), "failed rule keeps its marker")

	// next tick retries only the failed rule
	report, err = p.ProcessDueRules(ctx, activeRules(t, store, userID), monday)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		txs, err := store.ListTransactionsByRule(ctx, id)
		require.NoError(t, err)
		assert.Len(t, txs, 1)
	}
}

func TestProcessDueRules_MarkerFailureRollsBackTransaction(t *testing.T) {
	p, store, notifier := newFixture()
	ctx := context.Background()
	rule := weeklyRule(uuid.New(), false)
	mustCreate(store, rule)

	store.InjectFault(memory.OpUpdateRuleLastGenerated,
		storage.NewError("update rule marker", storage.ErrUnavailable, nil))

	report, err := p.ProcessDueRules(ctx, activeRules(t, store, rule.UserID), monday)
	require.Error(t, err)
	assert.Equal(t, 1, report.Failed)

	txs, err := store.ListTransactionsByRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.Empty(t, notifier.txs)
}

func TestProcessDueRules_ApprovalRequired(t *testing.T) {
	p, store, notifier := newFixture()
	ctx := context.Background()
	rule := weeklyRule(uuid.New(), true)
	mustCreate(store, rule)

	report, err := p.ProcessDueRules(ctx, activeRules(t, store, rule.UserID), monday)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PendingCreated)

	pending, err := store.ListPendingApprovals(ctx, rule.UserID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Nil(t, pending[0].IsApproved)
	assert.Equal(t, monday.String(), pending[0].ScheduledDate.String())
	assert.Equal(t, rule.ID, pending[0].RuleID)
	require.Len(t, notifier.approvals, 1)

	got, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.True(t, got.LastGeneratedDate.IsZero(), "approval path never stamps the marker")

	report, err = p.ProcessDueRules(ctx, activeRules(t, store, rule.UserID), monday)
	require.NoError(t, err)
	assert.Equal(t, 0, report.PendingCreated)
	assert.Equal(t, 1, report.Duplicates)

	pending, err = store.ListPendingApprovals(ctx, rule.UserID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	txs, err := store.ListTransactionsByRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

// Losing the check-then-insert race surfaces as a conflict, which is success.
func TestProcessDueRules_ApprovalRaceIsDuplicate(t *testing.T) {
	p, store, notifier := newFixture()
	ctx := context.Background()
	rule := weeklyRule(uuid.New(), true)
	mustCreate(store, rule)
	_, err := store.InsertPendingApproval(ctx, core.PendingApproval{UserID: rule.UserID, RuleID: rule.ID, ScheduledDate: monday})
	require.NoError(t, err)

	store.InjectFault(memory.OpFindPendingApproval, storage.NewError("find pending approval", storage.ErrNotFound, nil))

	report, err := p.ProcessDueRules(ctx, []core.RecurrenceRule{rule}, monday)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApprovalExists, report.Results[0].Outcome)
	assert.Empty(t, notifier.approvals)
}

func TestProcessDueRules_SkipsInactiveAndNotDue(t *testing.T) {
	p, store, _ := newFixture()
	ctx := context.Background()
	userID := uuid.New()

	inactive := weeklyRule(userID, false)
	inactive.IsActive = false
	tuesday := weeklyRule(userID, false)
	tuesday.DayOfWeek = core.IntPtr(2)
	ended := weeklyRule(userID, false)
	ended.EndDate = core.NewDate(2024, 1, 14)
	mustCreate(store, inactive, tuesday, ended)

	report, err := p.ProcessDueRules(ctx, []core.RecurrenceRule{inactive, tuesday, ended}, monday)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 0, report.Due)
	assert.Empty(t, report.Results)
}

func TestProcessDueRules_NotifierFailureDoesNotFail(t *testing.T) {
	p, store, notifier := newFixture()
	notifier.err = errors.New("broker down")
	rule := weeklyRule(uuid.New(), false)
	mustCreate(store, rule)

	report, err := p.ProcessDueRules(context.Background(), []core.RecurrenceRule{rule}, monday)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
}

func TestProcessUser_SkipsWhenLockHeld(t *testing.T) {
	locker := lock.NewLocal()
	p, store, _ := newFixture(WithLocker(locker))
	ctx := context.Background()
	rule := weeklyRule(uuid.New(), false)
	mustCreate(store, rule)

	release, err := locker.Obtain(ctx, lockKey(rule.UserID))
	require.NoError(t, err)

	report, err := p.ProcessUser(ctx, rule.UserID, monday)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SkippedUsers)
	assert.Equal(t, 0, report.Created)

	require.NoError(t, release(ctx))
	report, err = p.ProcessUser(ctx, rule.UserID, monday)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
}

func TestProcessUser_ListFailure(t *testing.T) {
	p, store, _ := newFixture()
	userID := uuid.New()
	store.InjectFault(memory.OpListActiveRules, storage.NewError("list active rules", storage.ErrUnavailable, nil))

	_, err := p.ProcessUser(context.Background(), userID, monday)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestProcessAll(t *testing.T) {
	p, store, _ := newFixture()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	mustCreate(store, weeklyRule(alice, false), weeklyRule(alice, true), weeklyRule(bob, false))

	report, err := p.ProcessAll(ctx, monday)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.PendingCreated)

	report, err = p.ProcessAll(ctx, monday)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 0, report.PendingCreated)
	assert.Equal(t, 1, report.Duplicates, "only the approval rule is still due")
}

func TestUpcomingOccurrences(t *testing.T) {
	p, store, _ := newFixture()
	rule := weeklyRule(uuid.New(), true)
	mustCreate(store, rule)

	got, err := p.UpcomingOccurrences(context.Background(), rule.ID, core.NewDate(2024, 1, 3), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2024-01-08", got[0].Date.String())
	assert.Equal(t, "2024-01-22", got[2].Date.String())
	assert.True(t, got[0].RequiresApproval)

	_, err = p.UpcomingOccurrences(context.Background(), uuid.New(), monday, 3)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
