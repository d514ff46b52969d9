// Package recurrence decides when a recurrence rule fires.
//
// Each frequency is a FrequencyStrategy registered by name. A strategy answers
// two questions about a rule: whether a given day matches its pattern, and which
// matching day comes next after a cursor. The occurrence generator and the due
// check are both built on top of those two primitives.
package recurrence

import (
	"fmt"

	"fintrack/internal/core"
)

// FrequencyStrategy is the strategy interface for one frequency kind.
type FrequencyStrategy interface {
	// Matches reports whether d satisfies the rule's frequency pattern. Range
	// checks against start and end dates are the caller's responsibility.
	Matches(rule core.RecurrenceRule, d core.Date) bool
	// Next returns the first matching day strictly after cursor. ok is false when
	// the rule lacks the fields its frequency needs.
	Next(rule core.RecurrenceRule, cursor core.Date) (next core.Date, ok bool)
}

// DailyStrategy fires every day.
type DailyStrategy struct{}

func (DailyStrategy) Matches(core.RecurrenceRule, core.Date) bool { return true }

func (DailyStrategy) Next(_ core.RecurrenceRule, cursor core.Date) (core.Date, bool) {
	return cursor.AddDays(1), true
}

// WeeklyStrategy fires on DayOfWeek, 0=Sunday..6=Saturday.
type WeeklyStrategy struct{}

func (WeeklyStrategy) Matches(rule core.RecurrenceRule, d core.Date) bool {
	if rule.DayOfWeek == nil {
		return false
	}
	return int(d.Weekday()) == *rule.DayOfWeek
}

func (WeeklyStrategy) Next(rule core.RecurrenceRule, cursor core.Date) (core.Date, bool) {
	if rule.DayOfWeek == nil || *rule.DayOfWeek < 0 || *rule.DayOfWeek > 6 {
		return core.Date{}, false
	}
	delta := (*rule.DayOfWeek - int(cursor.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return cursor.AddDays(delta), true
}

// MonthlyStrategy fires on DayOfMonth. When the month is too short the rule
// fires on its last day instead, so a day-31 rule lands on Feb 28 or 29, Apr 30
// and so on. It still fires only once per month.
type MonthlyStrategy struct{}

func (MonthlyStrategy) Matches(rule core.RecurrenceRule, d core.Date) bool {
	if rule.DayOfMonth == nil {
		return false
	}
	return d.Day() == d.ClampDay(*rule.DayOfMonth).Day()
}

func (MonthlyStrategy) Next(rule core.RecurrenceRule, cursor core.Date) (core.Date, bool) {
	if rule.DayOfMonth == nil || *rule.DayOfMonth < 1 {
		return core.Date{}, false
	}
	if inMonth := cursor.ClampDay(*rule.DayOfMonth); inMonth.After(cursor) {
		return inMonth, true
	}
	return cursor.FirstOfNextMonth().ClampDay(*rule.DayOfMonth), true
}

// strategies maps frequencies to their strategy.
var strategies = map[core.Frequency]FrequencyStrategy{
	core.FrequencyDaily:   DailyStrategy{},
	core.FrequencyWeekly:  WeeklyStrategy{},
	core.FrequencyMonthly: MonthlyStrategy{},
}

// GetStrategy returns the strategy registered for frequency.
func GetStrategy(frequency core.Frequency) (FrequencyStrategy, error) {
	s, ok := strategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", frequency)
	}
	return s, nil
}

// RegisterStrategy installs a strategy for a new frequency. It is meant to be
// called during program initialization only.
func RegisterStrategy(frequency core.Frequency, s FrequencyStrategy) {
	strategies[frequency] = s
}

// Matches reports whether d satisfies rule's frequency pattern. Unknown
// frequencies never match.
func Matches(rule core.RecurrenceRule, d core.Date) bool {
	s, err := GetStrategy(rule.Frequency)
	if err != nil {
		return false
	}
	return s.Matches(rule, d)
}
