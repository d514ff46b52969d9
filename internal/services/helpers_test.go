package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/storage/memory"
)

// 2024-01-15 is a Monday.
var monday = core.NewDate(2024, 1, 15)

var fixedNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu        sync.Mutex
	txs       []core.Transaction
	approvals []core.PendingApproval
	err       error
}

func (n *recordingNotifier) PublishTransactionCreated(_ context.Context, tx core.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.txs = append(n.txs, tx)
	return n.err
}

func (n *recordingNotifier) PublishApprovalRequested(_ context.Context, pa core.PendingApproval) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approvals = append(n.approvals, pa)
	return n.err
}

func weeklyRule(userID uuid.UUID, approval bool) core.RecurrenceRule {
	return core.RecurrenceRule{
		ID:               uuid.New(),
		UserID:           userID,
		Amount:           decimal.RequireFromString("25.00"),
		Description:      "gym",
		Kind:             core.KindExpense,
		Frequency:        core.FrequencyWeekly,
		DayOfWeek:        core.IntPtr(1),
		RequiresApproval: approval,
		IsActive:         true,
		StartDate:        core.NewDate(2024, 1, 1),
	}
}

func newFixture(opts ...Option) (*RecurringProcessor, *memory.Store, *recordingNotifier) {
	store := memory.New()
	notifier := &recordingNotifier{}
	opts = append([]Option{WithNotifier(notifier), WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewRecurringProcessor(store, opts...), store, notifier
}

func mustCreate(store *memory.Store, rules ...core.RecurrenceRule) {
	for _, r := range rules {
		if _, err := store.CreateRule(context.Background(), r); err != nil {
			panic(err)
		}
	}
}
