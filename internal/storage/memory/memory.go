// Package memory is an in-process Store. It enforces the same uniqueness
// guards as the SQLite schema, so it is usable both as the development
// backend and as the fake in engine tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// Operation names accepted by InjectFault.
const (
	OpListRuleOwners          = "ListRuleOwners"
	OpListActiveRules         = "ListActiveRules"
	OpListRules               = "ListRules"
	OpGetRule                 = "GetRule"
	OpCreateRule              = "CreateRule"
	OpSetRuleActive           = "SetRuleActive"
	OpDeleteRule              = "DeleteRule"
	OpUpdateRuleLastGenerated = "UpdateRuleLastGenerated"
	OpInsertTransaction       = "InsertTransaction"
	OpGetTransaction          = "GetTransaction"
	OpListTransactionsByRule  = "ListTransactionsByRule"
	OpInsertPendingApproval   = "InsertPendingApproval"
	OpFindPendingApproval     = "FindPendingApproval"
	OpGetPendingApproval      = "GetPendingApproval"
	OpListPendingApprovals    = "ListPendingApprovals"
	OpDecideApproval          = "DecideApproval"
)

type occurrenceKey struct {
	rule uuid.UUID
	date string
}

type state struct {
	rules        map[uuid.UUID]core.RecurrenceRule
	transactions map[uuid.UUID]core.Transaction
	txByRuleDate map[occurrenceKey]uuid.UUID
	approvals    map[uuid.UUID]core.PendingApproval
	paByRuleDate map[occurrenceKey]uuid.UUID
}

func newState() *state {
	return &state{
		rules:        make(map[uuid.UUID]core.RecurrenceRule),
		transactions: make(map[uuid.UUID]core.Transaction),
		txByRuleDate: make(map[occurrenceKey]uuid.UUID),
		approvals:    make(map[uuid.UUID]core.PendingApproval),
		paByRuleDate: make(map[occurrenceKey]uuid.UUID),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.rules {
		c.rules[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.txByRuleDate {
		c.txByRuleDate[k] = v
	}
	for k, v := range s.approvals {
		c.approvals[k] = v
	}
	for k, v := range s.paByRuleDate {
		c.paByRuleDate[k] = v
	}
	return c
}

// Store is a mutex guarded in-memory storage.Store.
type Store struct {
	mu     sync.Mutex
	st     *state
	faults map[string][]error
	now    func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		st:     newState(),
		faults: make(map[string][]error),
		now:    time.Now,
	}
}

// InjectFault makes the next call of op fail with err. Faults queue up when
// injected repeatedly for the same op.
func (s *Store) InjectFault(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], err)
}

// view runs store operations against the state without locking. The Store
// takes the lock around each call; Atomically holds it for the whole unit.
type view struct {
	s *Store
}

func (v view) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return storage.NewError(op, storage.ErrUnavailable, err)
	}
	if q := v.s.faults[op]; len(q) > 0 {
		err := q[0]
		v.s.faults[op] = q[1:]
		return err
	}
	return nil
}

// Atomically on a view is already inside the store's unit of work.
func (v view) Atomically(_ context.Context, fn func(storage.Store) error) error {
	return fn(v)
}

func locked[T any](s *Store, fn func(view) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(view{s: s})
}

// Atomically runs fn while holding the store lock, restoring the previous
// contents if fn fails.
func (s *Store) Atomically(ctx context.Context, fn func(storage.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return storage.NewError("atomically", storage.ErrUnavailable, err)
	}
	snapshot := s.st.clone()
	if err := fn(view{s: s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) ListRuleOwners(ctx context.Context) ([]uuid.UUID, error) {
	return locked(s, func(v view) ([]uuid.UUID, error) { return v.ListRuleOwners(ctx) })
}

func (s *Store) ListActiveRules(ctx context.Context, userID uuid.UUID) ([]core.RecurrenceRule, error) {
	return locked(s, func(v view) ([]core.RecurrenceRule, error) { return v.ListActiveRules(ctx, userID) })
}

func (s *Store) ListRules(ctx context.Context, userID uuid.UUID) ([]core.RecurrenceRule, error) {
	return locked(s, func(v view) ([]core.RecurrenceRule, error) { return v.ListRules(ctx, userID) })
}

func (s *Store) GetRule(ctx context.Context, id uuid.UUID) (core.RecurrenceRule, error) {
	return locked(s, func(v view) (core.RecurrenceRule, error) { return v.GetRule(ctx, id) })
}

func (s *Store) CreateRule(ctx context.Context, rule core.RecurrenceRule) (uuid.UUID, error) {
	return locked(s, func(v view) (uuid.UUID, error) { return v.CreateRule(ctx, rule) })
}

func (s *Store) SetRuleActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := locked(s, func(v view) (struct{}, error) { return struct{}{}, v.SetRuleActive(ctx, id, active) })
	return err
}

func (s *Store) DeleteRule(ctx context.Context, id uuid.UUID) error {
	_, err := locked(s, func(v view) (struct{}, error) { return struct{}{}, v.DeleteRule(ctx, id) })
	return err
}

func (s *Store) UpdateRuleLastGenerated(ctx context.Context, id uuid.UUID, date core.Date) error {
	_, err := locked(s, func(v view) (struct{}, error) { return struct{}{}, v.UpdateRuleLastGenerated(ctx, id, date) })
	return err
}

func (s *Store) InsertTransaction(ctx context.Context, tx core.Transaction) (uuid.UUID, error) {
	return locked(s, func(v view) (uuid.UUID, error) { return v.InsertTransaction(ctx, tx) })
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error) {
	return locked(s, func(v view) (core.Transaction, error) { return v.GetTransaction(ctx, id) })
}

func (s *Store) ListTransactionsByRule(ctx context.Context, ruleID uuid.UUID) ([]core.Transaction, error) {
	return locked(s, func(v view) ([]core.Transaction, error) { return v.ListTransactionsByRule(ctx, ruleID) })
}

func (s *Store) InsertPendingApproval(ctx context.Context, pa core.PendingApproval) (uuid.UUID, error) {
	return locked(s, func(v view) (uuid.UUID, error) { return v.InsertPendingApproval(ctx, pa) })
}

func (s *Store) FindPendingApproval(ctx context.Context, ruleID uuid.UUID, date core.Date) (core.PendingApproval, error) {
	return locked(s, func(v view) (core.PendingApproval, error) { return v.FindPendingApproval(ctx, ruleID, date) })
}

func (s *Store) GetPendingApproval(ctx context.Context, id uuid.UUID) (core.PendingApproval, error) {
	return locked(s, func(v view) (core.PendingApproval, error) { return v.GetPendingApproval(ctx, id) })
}

func (s *Store) ListPendingApprovals(ctx context.Context, userID uuid.UUID) ([]core.PendingApproval, error) {
	return locked(s, func(v view) ([]core.PendingApproval, error) { return v.ListPendingApprovals(ctx, userID) })
}

func (s *Store) DecideApproval(ctx context.Context, id uuid.UUID, approved bool, at time.Time) error {
	_, err := locked(s, func(v view) (struct{}, error) { return struct{}{}, v.DecideApproval(ctx, id, approved, at) })
	return err
}

func (v view) ListRuleOwners(ctx context.Context) ([]uuid.UUID, error) {
	if err := v.check(ctx, OpListRuleOwners); err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, r := range v.s.st.rules {
		if !r.IsActive {
			continue
		}
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		out = append(out, r.UserID)
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	return out, nil
}

func (v view) rulesOf(userID uuid.UUID, activeOnly bool) []core.RecurrenceRule {
	var out []core.RecurrenceRule
	for _, r := range v.s.st.rules {
		if r.UserID != userID || (activeOnly && !r.IsActive) {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b core.RecurrenceRule) int {
		if c := a.StartDate.Compare(b.StartDate.Time); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

func (v view) ListActiveRules(ctx context.Context, userID uuid.UUID) ([]core.RecurrenceRule, error) {
	if err := v.check(ctx, OpListActiveRules); err != nil {
		return nil, err
	}
	return v.rulesOf(userID, true), nil
}

func (v view) ListRules(ctx context.Context, userID uuid.UUID) ([]core.RecurrenceRule, error) {
	if err := v.check(ctx, OpListRules); err != nil {
		return nil, err
	}
	return v.rulesOf(userID, false), nil
}

func (v view) GetRule(ctx context.Context, id uuid.UUID) (core.RecurrenceRule, error) {
	if err := v.check(ctx, OpGetRule); err != nil {
		return core.RecurrenceRule{}, err
	}
	r, ok := v.s.st.rules[id]
	if !ok {
		return core.RecurrenceRule{}, notFound("get rule", "rule", id)
	}
	return r, nil
}

func (v view) CreateRule(ctx context.Context, rule core.RecurrenceRule) (uuid.UUID, error) {
	if err := v.check(ctx, OpCreateRule); err != nil {
		return uuid.Nil, err
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if _, exists := v.s.st.rules[rule.ID]; exists {
		return uuid.Nil, storage.NewError("create rule", storage.ErrConflict, fmt.Errorf("rule %s exists", rule.ID))
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = v.s.now().UTC()
	}
	v.s.st.rules[rule.ID] = rule
	return rule.ID, nil
}

func (v view) SetRuleActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := v.check(ctx, OpSetRuleActive); err != nil {
		return err
	}
	r, ok := v.s.st.rules[id]
	if !ok {
		return notFound("set rule active", "rule", id)
	}
	r.IsActive = active
	v.s.st.rules[id] = r
	return nil
}

func (v view) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if err := v.check(ctx, OpDeleteRule); err != nil {
		return err
	}
	if _, ok := v.s.st.rules[id]; !ok {
		return notFound("delete rule", "rule", id)
	}
	delete(v.s.st.rules, id)
	for key, txID := range v.s.st.txByRuleDate {
		if key.rule != id {
			continue
		}
		tx := v.s.st.transactions[txID]
		tx.RecurringRuleID = uuid.NullUUID{}
		v.s.st.transactions[txID] = tx
		delete(v.s.st.txByRuleDate, key)
	}
	for key, paID := range v.s.st.paByRuleDate {
		if key.rule != id {
			continue
		}
		delete(v.s.st.approvals, paID)
		delete(v.s.st.paByRuleDate, key)
	}
	return nil
}

func (v view) UpdateRuleLastGenerated(ctx context.Context, id uuid.UUID, date core.Date) error {
	if err := v.check(ctx, OpUpdateRuleLastGenerated); err != nil {
		return err
	}
	r, ok := v.s.st.rules[id]
	if !ok {
		return notFound("update rule marker", "rule", id)
	}
	r.LastGeneratedDate = date
	v.s.st.rules[id] = r
	return nil
}

func (v view) InsertTransaction(ctx context.Context, tx core.Transaction) (uuid.UUID, error) {
	if err := v.check(ctx, OpInsertTransaction); err != nil {
		return uuid.Nil, err
	}
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if _, exists := v.s.st.transactions[tx.ID]; exists {
		return uuid.Nil, storage.NewError("insert transaction", storage.ErrConflict, fmt.Errorf("transaction %s exists", tx.ID))
	}
	var key occurrenceKey
	if tx.RecurringRuleID.Valid {
		key = occurrenceKey{rule: tx.RecurringRuleID.UUID, date: tx.Date.String()}
		if _, dup := v.s.st.txByRuleDate[key]; dup {
			return uuid.Nil, storage.NewError("insert transaction", storage.ErrConflict,
				fmt.Errorf("rule %s already has a transaction on %s", key.rule, key.date))
		}
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = v.s.now().UTC()
	}
	v.s.st.transactions[tx.ID] = tx
	if tx.RecurringRuleID.Valid {
		v.s.st.txByRuleDate[key] = tx.ID
	}
	return tx.ID, nil
}

func (v view) GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error) {
	if err := v.check(ctx, OpGetTransaction); err != nil {
		return core.Transaction{}, err
	}
	tx, ok := v.s.st.transactions[id]
	if !ok {
		return core.Transaction{}, notFound("get transaction", "transaction", id)
	}
	return tx, nil
}

func (v view) ListTransactionsByRule(ctx context.Context, ruleID uuid.UUID) ([]core.Transaction, error) {
	if err := v.check(ctx, OpListTransactionsByRule); err != nil {
		return nil, err
	}
	var out []core.Transaction
	for _, tx := range v.s.st.transactions {
		if tx.RecurringRuleID.Valid && tx.RecurringRuleID.UUID == ruleID {
			out = append(out, tx)
		}
	}
	slices.SortFunc(out, func(a, b core.Transaction) int { return a.Date.Compare(b.Date.Time) })
	return out, nil
}

func (v view) InsertPendingApproval(ctx context.Context, pa core.PendingApproval) (uuid.UUID, error) {
	if err := v.check(ctx, OpInsertPendingApproval); err != nil {
		return uuid.Nil, err
	}
	if pa.ID == uuid.Nil {
		pa.ID = uuid.New()
	}
	key := occurrenceKey{rule: pa.RuleID, date: pa.ScheduledDate.String()}
	if _, dup := v.s.st.paByRuleDate[key]; dup {
		return uuid.Nil, storage.NewError("insert pending approval", storage.ErrConflict,
			fmt.Errorf("rule %s already has an approval on %s", key.rule, key.date))
	}
	if _, exists := v.s.st.approvals[pa.ID]; exists {
		return uuid.Nil, storage.NewError("insert pending approval", storage.ErrConflict, fmt.Errorf("approval %s exists", pa.ID))
	}
	if pa.CreatedAt.IsZero() {
		pa.CreatedAt = v.s.now().UTC()
	}
	v.s.st.approvals[pa.ID] = pa
	v.s.st.paByRuleDate[key] = pa.ID
	return pa.ID, nil
}

func (v view) FindPendingApproval(ctx context.Context, ruleID uuid.UUID, date core.Date) (core.PendingApproval, error) {
	if err := v.check(ctx, OpFindPendingApproval); err != nil {
		return core.PendingApproval{}, err
	}
	id, ok := v.s.st.paByRuleDate[occurrenceKey{rule: ruleID, date: date.String()}]
	if !ok {
		return core.PendingApproval{}, storage.NewError("find pending approval", storage.ErrNotFound, nil)
	}
	return v.s.st.approvals[id], nil
}

func (v view) GetPendingApproval(ctx context.Context, id uuid.UUID) (core.PendingApproval, error) {
	if err := v.check(ctx, OpGetPendingApproval); err != nil {
		return core.PendingApproval{}, err
	}
	pa, ok := v.s.st.approvals[id]
	if !ok {
		return core.PendingApproval{}, notFound("get pending approval", "approval", id)
	}
	return pa, nil
}

func (v view) ListPendingApprovals(ctx context.Context, userID uuid.UUID) ([]core.PendingApproval, error) {
	if err := v.check(ctx, OpListPendingApprovals); err != nil {
		return nil, err
	}
	var out []core.PendingApproval
	for _, pa := range v.s.st.approvals {
		if pa.UserID == userID && pa.IsPending() {
			out = append(out, pa)
		}
	}
	slices.SortFunc(out, func(a, b core.PendingApproval) int {
		if c := a.ScheduledDate.Compare(b.ScheduledDate.Time); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (v view) DecideApproval(ctx context.Context, id uuid.UUID, approved bool, at time.Time) error {
	if err := v.check(ctx, OpDecideApproval); err != nil {
		return err
	}
	pa, ok := v.s.st.approvals[id]
	if !ok || !pa.IsPending() {
		return storage.NewError("decide approval", storage.ErrNotFound,
			fmt.Errorf("approval %s is unknown or already decided", id))
	}
	at = at.UTC()
	pa.IsApproved = &approved
	pa.ApprovedAt = &at
	v.s.st.approvals[id] = pa
	return nil
}

func notFound(op, what string, id uuid.UUID) error {
	return storage.NewError(op, storage.ErrNotFound, fmt.Errorf("%s %s", what, id))
}
