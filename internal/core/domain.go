package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

const maxDescriptionLen = 200

type (
	Frequency      string
	Kind           string
	ApprovalStatus string

	// RecurrenceRule is a user-owned template for a repeating transaction.
	// DayOfWeek uses 0=Sunday..6=Saturday and is set only for weekly rules;
	// DayOfMonth is set only for monthly rules. A zero EndDate means unbounded and
	// a zero LastGeneratedDate means nothing was materialized yet.
	RecurrenceRule struct {
		ID                uuid.UUID       `json:"id"`
		UserID            uuid.UUID       `json:"user_id"`
		CategoryID        uuid.NullUUID   `json:"category_id"`
		Amount            decimal.Decimal `json:"amount"`
		Description       string          `json:"description,omitempty"`
		Kind              Kind            `json:"kind"`
		Frequency         Frequency       `json:"frequency"`
		DayOfWeek         *int            `json:"day_of_week,omitempty"`
		DayOfMonth        *int            `json:"day_of_month,omitempty"`
		RequiresApproval  bool            `json:"requires_approval"`
		IsActive          bool            `json:"is_active"`
		StartDate         Date            `json:"start_date"`
		EndDate           Date            `json:"end_date"`
		LastGeneratedDate Date            `json:"last_generated_date"`
		CreatedAt         time.Time       `json:"created_at"`
	}

	// Transaction is a ledger entry. RecurringRuleID is set when a rule generated it.
	Transaction struct {
		ID              uuid.UUID       `json:"id"`
		UserID          uuid.UUID       `json:"user_id"`
		CategoryID      uuid.NullUUID   `json:"category_id"`
		Amount          decimal.Decimal `json:"amount"`
		Description     string          `json:"description,omitempty"`
		Kind            Kind            `json:"kind"`
		Date            Date            `json:"date"`
		RecurringRuleID uuid.NullUUID   `json:"recurring_rule_id"`
		CreatedAt       time.Time       `json:"created_at"`
	}

	// PendingApproval is a due occurrence of an approval-required rule waiting
	// for the user. IsApproved is nil while pending.
	PendingApproval struct {
		ID            uuid.UUID  `json:"id"`
		UserID        uuid.UUID  `json:"user_id"`
		RuleID        uuid.UUID  `json:"rule_id"`
		ScheduledDate Date       `json:"scheduled_date"`
		IsApproved    *bool      `json:"is_approved"`
		ApprovedAt    *time.Time `json:"approved_at"`
		CreatedAt     time.Time  `json:"created_at"`
	}

	// Occurrence is a projected, never persisted, materialization of a rule.
	Occurrence struct {
		Date             Date            `json:"date"`
		Amount           decimal.Decimal `json:"amount"`
		Description      string          `json:"description,omitempty"`
		Kind             Kind            `json:"kind"`
		CategoryID       uuid.NullUUID   `json:"category_id"`
		RequiresApproval bool            `json:"requires_approval"`
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrValidation    = errors.New("validation failed")
)

// ValidationError reports a malformed rule. It matches ErrValidation.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

func (k Kind) IsValid() bool {
	return k == KindIncome || k == KindExpense
}

// Validate checks the cross-field invariants of a rule.
func (r RecurrenceRule) Validate() error {
	if r.UserID == uuid.Nil {
		return invalid("user_id", "required")
	}
	if !r.Amount.IsPositive() {
		return invalid("amount", "must be greater than zero")
	}
	if len(r.Description) > maxDescriptionLen {
		return invalid("description", fmt.Sprintf("too long (max %d characters)", maxDescriptionLen))
	}
	if !r.Kind.IsValid() {
		return invalid("kind", fmt.Sprintf("unknown kind %q", r.Kind))
	}

	switch r.Frequency {
	case FrequencyDaily:
		if r.DayOfWeek != nil {
			return invalid("day_of_week", "not allowed for daily rules")
		}
		if r.DayOfMonth != nil {
			return invalid("day_of_month", "not allowed for daily rules")
		}
	case FrequencyWeekly:
		if r.DayOfWeek == nil {
			return invalid("day_of_week", "required for weekly rules")
		}
		if *r.DayOfWeek < 0 || *r.DayOfWeek > 6 {
			return invalid("day_of_week", "must be between 0 and 6")
		}
		if r.DayOfMonth != nil {
			return invalid("day_of_month", "not allowed for weekly rules")
		}
	case FrequencyMonthly:
		if r.DayOfMonth == nil {
			return invalid("day_of_month", "required for monthly rules")
		}
		if *r.DayOfMonth < 1 || *r.DayOfMonth > 31 {
			return invalid("day_of_month", "must be between 1 and 31")
		}
		if r.DayOfWeek != nil {
			return invalid("day_of_week", "not allowed for monthly rules")
		}
	default:
		return invalid("frequency", fmt.Sprintf("unknown frequency %q", r.Frequency))
	}

	if err := r.StartDate.Validate(); err != nil {
		return invalid("start_date", "required")
	}
	if !r.EndDate.IsZero() && r.EndDate.Before(r.StartDate) {
		return invalid("end_date", "must not be before start_date")
	}
	return nil
}

// HasEnd reports whether the rule has an inclusive upper bound.
func (r RecurrenceRule) HasEnd() bool {
	return !r.EndDate.IsZero()
}

// TransactionFor builds the transaction the rule materializes on date.
func (r RecurrenceRule) TransactionFor(date Date) Transaction {
	return Transaction{
		UserID:          r.UserID,
		CategoryID:      r.CategoryID,
		Amount:          r.Amount,
		Description:     strings.TrimSpace(r.Description),
		Kind:            r.Kind,
		Date:            date,
		RecurringRuleID: uuid.NullUUID{UUID: r.ID, Valid: true},
	}
}

// OccurrenceOn projects the rule onto date.
func (r RecurrenceRule) OccurrenceOn(date Date) Occurrence {
	return Occurrence{
		Date:             date,
		Amount:           r.Amount,
		Description:      r.Description,
		Kind:             r.Kind,
		CategoryID:       r.CategoryID,
		RequiresApproval: r.RequiresApproval,
	}
}

func (p PendingApproval) Status() ApprovalStatus {
	switch {
	case p.IsApproved == nil:
		return ApprovalPending
	case *p.IsApproved:
		return ApprovalApproved
	default:
		return ApprovalRejected
	}
}

func (p PendingApproval) IsPending() bool {
	return p.IsApproved == nil
}

// IntPtr is a helper for the optional day fields.
func IntPtr(v int) *int {
	return &v
}
