package services

import (
	"context"

	"fintrack/internal/core"
	"fintrack/internal/lock"
)

// Notifier announces materialization events. Publishing is best effort: a
// failure is logged and never undoes what was persisted.
type Notifier interface {
	PublishTransactionCreated(ctx context.Context, tx core.Transaction) error
	PublishApprovalRequested(ctx context.Context, pa core.PendingApproval) error
}

// Locker serializes ticks for the same user. Obtain returns an error wrapping
// lock.ErrNotObtained when another holder has the key.
type Locker interface {
	Obtain(ctx context.Context, key string) (lock.ReleaseFunc, error)
}

type nopNotifier struct{}

func (nopNotifier) PublishTransactionCreated(context.Context, core.Transaction) error    { return nil }
func (nopNotifier) PublishApprovalRequested(context.Context, core.PendingApproval) error { return nil }

// NopNotifier returns a Notifier that drops every event.
func NopNotifier() Notifier { return nopNotifier{} }
