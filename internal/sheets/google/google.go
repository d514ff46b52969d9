package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	"fintrack/internal/log"
	ports "fintrack/internal/sheets"
)

const defaultLedgerSheet = "Ledger"

// Client appends transactions to a year-prefixed ledger sheet, e.g.
// "2024 Ledger" for a transaction dated in 2024.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	ledgerBase    string
}

var _ ports.TransactionWriter = (*Client)(nil)

// Options configures New. When ClientOptions is empty, service account
// credentials are read from CredentialsJSON or CredentialsFile.
type Options struct {
	SpreadsheetID   string
	LedgerSheet     string
	CredentialsJSON string
	CredentialsFile string
	ClientOptions   []goption.ClientOption
}

// New creates a Sheets client.
func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(opts.LedgerSheet)
	if base == "" {
		base = defaultLedgerSheet
	}

	clientOpts := opts.ClientOptions
	if len(clientOpts) == 0 {
		creds, err := loadCredentials(ctx, opts.CredentialsJSON, opts.CredentialsFile)
		if err != nil {
			return nil, err
		}
		clientOpts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, ledgerBase: base}, nil
}

// NewFromEnv creates a Sheets client from the environment.
// Required: GOOGLE_SPREADSHEET_ID
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
// Optional: LEDGER_SHEET_NAME (default "Ledger").
func NewFromEnv(ctx context.Context) (*Client, error) {
	return New(ctx, Options{
		SpreadsheetID:   os.Getenv("GOOGLE_SPREADSHEET_ID"),
		LedgerSheet:     os.Getenv("LEDGER_SHEET_NAME"),
		CredentialsJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		CredentialsFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
	})
}

func loadCredentials(ctx context.Context, inline, file string) ([]byte, error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentSheets)
	inline = strings.TrimSpace(inline)
	file = strings.TrimSpace(file)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		logger.DebugContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		logger.DebugContext(ctx, "Reading service account credentials", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Append writes one row: date, description, amount, kind, category, rule id
// and transaction id. It returns the updated A1 range.
func (c *Client) Append(ctx context.Context, tx core.Transaction) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	sheet := yearPrefixedName(c.ledgerBase, tx.Date.Year())
	rng := fmt.Sprintf("%s!A:G", sheet)

	vr := &gsheet.ValueRange{Values: [][]any{ledgerRow(tx)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	log.FromContext(ctx).WithComponent(log.ComponentSheets).InfoContext(ctx, "Appended ledger row",
		log.FieldTransactionID, tx.ID,
		log.FieldSheetsRef, ref)
	return ref, nil
}

func ledgerRow(tx core.Transaction) []any {
	var category, rule string
	if tx.CategoryID.Valid {
		category = tx.CategoryID.UUID.String()
	}
	if tx.RecurringRuleID.Valid {
		rule = tx.RecurringRuleID.UUID.String()
	}
	return []any{
		tx.Date.String(),
		tx.Description,
		core.FormatAmount(tx.Amount),
		string(tx.Kind),
		category,
		rule,
		tx.ID.String(),
	}
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
