package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

const (
	syncedCacheSize = 4096
	syncedCacheTTL  = 24 * time.Hour
)

// LedgerSyncWorker copies materialized transactions to the external ledger.
// Recently appended transactions are remembered so a redelivered message
// does not add a second row.
type LedgerSyncWorker struct {
	store  storage.TransactionStore
	ledger sheets.TransactionWriter
	synced *cache.LRU[uuid.UUID, string]
}

func NewLedgerSyncWorker(store storage.TransactionStore, ledger sheets.TransactionWriter) *LedgerSyncWorker {
	return &LedgerSyncWorker{
		store:  store,
		ledger: ledger,
		synced: cache.NewLRU[uuid.UUID, string](syncedCacheSize, syncedCacheTTL),
	}
}

// HandleTransactionCreated processes a single transaction.created message.
// A transaction that no longer exists is dropped; any other failure is
// returned so the message is redelivered.
func (w *LedgerSyncWorker) HandleTransactionCreated(ctx context.Context, msg *amqp.TransactionCreatedMessage) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentWorker)

	if ref, ok := w.synced.Get(msg.TransactionID); ok {
		logger.DebugContext(ctx, "Transaction already in ledger, skipping",
			log.FieldTransactionID, msg.TransactionID,
			log.FieldSheetsRef, ref)
		return nil
	}

	tx, err := w.store.GetTransaction(ctx, msg.TransactionID)
	if storage.IsNotFound(err) {
		logger.WarnContext(ctx, "Transaction vanished before sync, dropping message",
			log.FieldTransactionID, msg.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	ref, err := w.ledger.Append(ctx, tx)
	if err != nil {
		return fmt.Errorf("append to ledger: %w", err)
	}
	w.synced.Set(tx.ID, ref)

	logger.InfoContext(ctx, "Synced transaction to ledger",
		log.FieldTransactionID, tx.ID,
		log.FieldDate, tx.Date.String(),
		log.FieldAmount, tx.Amount.StringFixed(2),
		log.FieldSheetsRef, ref)
	return nil
}
