package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// RuleService manages the lifecycle of recurrence rules.
type RuleService struct {
	store   storage.RuleStore
	timeout time.Duration
}

func NewRuleService(store storage.RuleStore, storageTimeout time.Duration) *RuleService {
	if storageTimeout <= 0 {
		storageTimeout = DefaultStorageTimeout
	}
	return &RuleService{store: store, timeout: storageTimeout}
}

func (s *RuleService) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// CreateRule validates and stores a new rule. Malformed rules are rejected
// here with a core.ValidationError and never reach the processor.
func (s *RuleService) CreateRule(ctx context.Context, rule core.RecurrenceRule) (core.RecurrenceRule, error) {
	rule.Description = strings.TrimSpace(rule.Description)
	if err := rule.Validate(); err != nil {
		return core.RecurrenceRule{}, err
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	rule.LastGeneratedDate = core.Date{}

	sctx, cancel := s.ctx(ctx)
	defer cancel()
	id, err := s.store.CreateRule(sctx, rule)
	if err != nil {
		return core.RecurrenceRule{}, fmt.Errorf("save rule: %w", err)
	}
	rule.ID = id

	slog.InfoContext(ctx, "Recurring rule created",
		log.FieldRuleID, rule.ID,
		log.FieldUserID, rule.UserID,
		log.FieldFrequency, rule.Frequency,
		log.FieldAmount, core.FormatAmount(rule.Amount))
	return rule, nil
}

func (s *RuleService) GetRule(ctx context.Context, id uuid.UUID) (core.RecurrenceRule, error) {
	sctx, cancel := s.ctx(ctx)
	defer cancel()
	return s.store.GetRule(sctx, id)
}

func (s *RuleService) ListRules(ctx context.Context, userID uuid.UUID) ([]core.RecurrenceRule, error) {
	sctx, cancel := s.ctx(ctx)
	defer cancel()
	return s.store.ListRules(sctx, userID)
}

// SetActive pauses or resumes a rule. Pausing does not touch anything already
// materialized.
func (s *RuleService) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	sctx, cancel := s.ctx(ctx)
	defer cancel()
	if err := s.store.SetRuleActive(sctx, id, active); err != nil {
		return fmt.Errorf("set rule %s active=%t: %w", id, active, err)
	}
	slog.InfoContext(ctx, "Recurring rule toggled", log.FieldRuleID, id, "active", active)
	return nil
}

// DeleteRule removes a rule. Its transactions remain, without the back-reference.
func (s *RuleService) DeleteRule(ctx context.Context, id uuid.UUID) error {
	sctx, cancel := s.ctx(ctx)
	defer cancel()
	if err := s.store.DeleteRule(sctx, id); err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	slog.InfoContext(ctx, "Recurring rule deleted", log.FieldRuleID, id)
	return nil
}
