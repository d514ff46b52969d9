package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// Writer is an in-memory ledger. A transaction appended twice keeps its
// first row.
type Writer struct {
	mu   sync.Mutex
	rows []core.Transaction
	refs map[uuid.UUID]string
}

func New() *Writer {
	return &Writer{refs: make(map[uuid.UUID]string)}
}

// Append stores the transaction and returns a synthetic row reference.
func (w *Writer) Append(_ context.Context, tx core.Transaction) (string, error) {
	if tx.ID == uuid.Nil {
		return "", errors.New("transaction id is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if ref, ok := w.refs[tx.ID]; ok {
		return ref, nil
	}
	w.rows = append(w.rows, tx)
	ref := fmt.Sprintf("mem:%d", len(w.rows))
	w.refs[tx.ID] = ref
	return ref, nil
}

// Rows returns the appended transactions in order.
func (w *Writer) Rows() []core.Transaction {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]core.Transaction(nil), w.rows...)
}
