package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"fintrack/internal/core"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteRepository is the Store backed by an embedded SQLite database.
type SQLiteRepository struct {
	db  *sql.DB
	q   querier
	now func() time.Time
}

var _ Store = (*SQLiteRepository)(nil)

// DSN builds the connection string for dbPath with the pragmas the schema
// relies on.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, q: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Atomically runs fn inside a database transaction.
func (r *SQLiteRepository) Atomically(ctx context.Context, fn func(Store) error) error {
	if _, inTx := r.q.(*sql.Tx); inTx {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin", err)
	}
	if err := fn(&SQLiteRepository{db: r.db, q: tx, now: r.now}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

// classify maps driver errors onto the storage outcome kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var kind error
	var se *sqlite.Error
	switch {
	case errors.Is(err, sql.ErrNoRows):
		kind = ErrNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.Is(err, sql.ErrConnDone):
		kind = ErrUnavailable
	case errors.As(err, &se):
		switch code := se.Code(); {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			kind = ErrConflict
		case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED, code&0xff == sqlite3.SQLITE_IOERR:
			kind = ErrUnavailable
		case code&0xff == sqlite3.SQLITE_PERM, code&0xff == sqlite3.SQLITE_AUTH, code&0xff == sqlite3.SQLITE_READONLY:
			kind = ErrPermissionDenied
		}
	}
	return NewError(op, kind, err)
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

const ruleColumns = `id, user_id, category_id, amount, description, kind, frequency,
	day_of_week, day_of_month, requires_approval, is_active,
	start_date, end_date, last_generated_date, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner) (core.RecurrenceRule, error) {
	var (
		rule      core.RecurrenceRule
		dow, dom  sql.NullInt64
		kind      string
		frequency string
	)
	err := s.Scan(&rule.ID, &rule.UserID, &rule.CategoryID, &rule.Amount, &rule.Description,
		&kind, &frequency, &dow, &dom, &rule.RequiresApproval, &rule.IsActive,
		&rule.StartDate, &rule.EndDate, &rule.LastGeneratedDate, &rule.CreatedAt)
	if err != nil {
		return core.RecurrenceRule{}, err
	}
	rule.Kind = core.Kind(kind)
	rule.Frequency = core.Frequency(frequency)
	rule.DayOfWeek = intPtr(dow)
	rule.DayOfMonth = intPtr(dom)
	return rule, nil
}

func (r *SQLiteRepository) queryRules(ctx context.Context, op, query string, args ...any) ([]core.RecurrenceRule, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []core.RecurrenceRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func (r *SQLiteRepository) ListRuleOwners(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM recurring_rules WHERE is_active = 1 ORDER BY user_id`)
	if err != nil {
		return nil, classify("list rule owners", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, classify("list rule owners", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list rule owners", err)
	}
	return out, nil
}

func (r *SQLiteRepository) ListActiveRules(ctx context.Context, userID uuid.UUID) ([]core.RecurrenceRule, error) {
	return r.queryRules(ctx, "list active rules",
		`SELECT `+ruleColumns+` FROM recurring_rules
		 WHERE user_id = ? AND is_active = 1
		 ORDER BY start_date, created_at`, userID)
}

func (r *SQLiteRepository) ListRules(ctx context.Context, userID uuid.UUID) ([]core.RecurrenceRule, error) {
	return r.queryRules(ctx, "list rules",
		`SELECT `+ruleColumns+` FROM recurring_rules
		 WHERE user_id = ?
		 ORDER BY start_date, created_at`, userID)
}

func (r *SQLiteRepository) GetRule(ctx context.Context, id uuid.UUID) (core.RecurrenceRule, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM recurring_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err != nil {
		return core.RecurrenceRule{}, classify("get rule", err)
	}
	return rule, nil
}

func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.RecurrenceRule) (uuid.UUID, error) {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = r.now().UTC()
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO recurring_rules (`+ruleColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.UserID, rule.CategoryID, rule.Amount, rule.Description,
		string(rule.Kind), string(rule.Frequency), nullInt(rule.DayOfWeek), nullInt(rule.DayOfMonth),
		rule.RequiresApproval, rule.IsActive,
		rule.StartDate, rule.EndDate, rule.LastGeneratedDate, rule.CreatedAt)
	if err != nil {
		return uuid.Nil, classify("create rule", err)
	}
	return rule.ID, nil
}

// execOne runs a single-row update and reports ErrNotFound when nothing matched.
func (r *SQLiteRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return NewError(op, ErrNotFound, nil)
	}
	return nil
}

func (r *SQLiteRepository) SetRuleActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.execOne(ctx, "set rule active",
		`UPDATE recurring_rules SET is_active = ? WHERE id = ?`, active, id)
}

func (r *SQLiteRepository) DeleteRule(ctx context.Context, id uuid.UUID) error {
	return r.execOne(ctx, "delete rule", `DELETE FROM recurring_rules WHERE id = ?`, id)
}

func (r *SQLiteRepository) UpdateRuleLastGenerated(ctx context.Context, id uuid.UUID, date core.Date) error {
	return r.execOne(ctx, "update rule marker",
		`UPDATE recurring_rules SET last_generated_date = ? WHERE id = ?`, date, id)
}

const transactionColumns = `id, user_id, category_id, amount, description, kind, date, recurring_rule_id, created_at`

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		tx   core.Transaction
		kind string
	)
	err := s.Scan(&tx.ID, &tx.UserID, &tx.CategoryID, &tx.Amount, &tx.Description,
		&kind, &tx.Date, &tx.RecurringRuleID, &tx.CreatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.Kind = core.Kind(kind)
	return tx, nil
}

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, tx core.Transaction) (uuid.UUID, error) {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = r.now().UTC()
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, tx.CategoryID, tx.Amount, tx.Description,
		string(tx.Kind), tx.Date, tx.RecurringRuleID, tx.CreatedAt)
	if err != nil {
		return uuid.Nil, classify("insert transaction", err)
	}
	return tx.ID, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, classify("get transaction", err)
	}
	return tx, nil
}

func (r *SQLiteRepository) ListTransactionsByRule(ctx context.Context, ruleID uuid.UUID) ([]core.Transaction, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE recurring_rule_id = ? ORDER BY date`, ruleID)
	if err != nil {
		return nil, classify("list transactions", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, classify("list transactions", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list transactions", err)
	}
	return out, nil
}

const approvalColumns = `id, user_id, rule_id, scheduled_date, is_approved, approved_at, created_at`

func scanApproval(s scanner) (core.PendingApproval, error) {
	var (
		pa         core.PendingApproval
		isApproved sql.NullBool
		approvedAt sql.NullTime
	)
	err := s.Scan(&pa.ID, &pa.UserID, &pa.RuleID, &pa.ScheduledDate, &isApproved, &approvedAt, &pa.CreatedAt)
	if err != nil {
		return core.PendingApproval{}, err
	}
	if isApproved.Valid {
		v := isApproved.Bool
		pa.IsApproved = &v
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		pa.ApprovedAt = &t
	}
	return pa, nil
}

func (r *SQLiteRepository) InsertPendingApproval(ctx context.Context, pa core.PendingApproval) (uuid.UUID, error) {
	if pa.ID == uuid.Nil {
		pa.ID = uuid.New()
	}
	if pa.CreatedAt.IsZero() {
		pa.CreatedAt = r.now().UTC()
	}
	var isApproved sql.NullBool
	if pa.IsApproved != nil {
		isApproved = sql.NullBool{Bool: *pa.IsApproved, Valid: true}
	}
	var approvedAt sql.NullTime
	if pa.ApprovedAt != nil {
		approvedAt = sql.NullTime{Time: *pa.ApprovedAt, Valid: true}
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO pending_approvals (`+approvalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pa.ID, pa.UserID, pa.RuleID, pa.ScheduledDate, isApproved, approvedAt, pa.CreatedAt)
	if err != nil {
		return uuid.Nil, classify("insert pending approval", err)
	}
	return pa.ID, nil
}

func (r *SQLiteRepository) FindPendingApproval(ctx context.Context, ruleID uuid.UUID, date core.Date) (core.PendingApproval, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM pending_approvals WHERE rule_id = ? AND scheduled_date = ?`,
		ruleID, date)
	pa, err := scanApproval(row)
	if err != nil {
		return core.PendingApproval{}, classify("find pending approval", err)
	}
	return pa, nil
}

func (r *SQLiteRepository) GetPendingApproval(ctx context.Context, id uuid.UUID) (core.PendingApproval, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM pending_approvals WHERE id = ?`, id)
	pa, err := scanApproval(row)
	if err != nil {
		return core.PendingApproval{}, classify("get pending approval", err)
	}
	return pa, nil
}

func (r *SQLiteRepository) ListPendingApprovals(ctx context.Context, userID uuid.UUID) ([]core.PendingApproval, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+approvalColumns+` FROM pending_approvals
		 WHERE user_id = ? AND is_approved IS NULL
		 ORDER BY scheduled_date, created_at`, userID)
	if err != nil {
		return nil, classify("list pending approvals", err)
	}
	defer rows.Close()

	var out []core.PendingApproval
	for rows.Next() {
		pa, err := scanApproval(rows)
		if err != nil {
			return nil, classify("list pending approvals", err)
		}
		out = append(out, pa)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list pending approvals", err)
	}
	return out, nil
}

func (r *SQLiteRepository) DecideApproval(ctx context.Context, id uuid.UUID, approved bool, at time.Time) error {
	err := r.execOne(ctx, "decide approval",
		`UPDATE pending_approvals SET is_approved = ?, approved_at = ?
		 WHERE id = ? AND is_approved IS NULL`, approved, at.UTC(), id)
	if err != nil && IsNotFound(err) {
		return NewError("decide approval", ErrNotFound, fmt.Errorf("approval %s is unknown or already decided", id))
	}
	return err
}
