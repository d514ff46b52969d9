package sheets

import (
	"context"

	"fintrack/internal/core"
)

// TransactionWriter appends materialized transactions to an external ledger.
type TransactionWriter interface {
	Append(ctx context.Context, tx core.Transaction) (rowRef string, err error)
}
