package recurrence

import (
	"iter"

	"fintrack/internal/core"
)

// Occurrences returns the lazy, ordered sequence of days on which rule fires,
// starting at max(today, rule.StartDate) and ending at rule.EndDate when set.
// The sequence depends only on its arguments, so ranging over it twice yields
// the same days. Without an end date it is infinite; stop ranging when done.
func Occurrences(rule core.RecurrenceRule, today core.Date) iter.Seq[core.Date] {
	return func(yield func(core.Date) bool) {
		strategy, err := GetStrategy(rule.Frequency)
		if err != nil {
			return
		}
		past := func(d core.Date) bool {
			return rule.HasEnd() && d.After(rule.EndDate)
		}

		cursor := core.MaxDate(today, rule.StartDate)
		if past(cursor) {
			return
		}
		if strategy.Matches(rule, cursor) {
			if !yield(cursor) {
				return
			}
		}
		for {
			next, ok := strategy.Next(rule, cursor)
			if !ok || past(next) {
				return
			}
			if !yield(next) {
				return
			}
			cursor = next
		}
	}
}

// maxPrealloc bounds the capacity hint; count may be far larger than the
// number of dates a bounded rule can yield.
const maxPrealloc = 64

// NextOccurrences returns at most count upcoming days for rule.
func NextOccurrences(rule core.RecurrenceRule, today core.Date, count int) []core.Date {
	if count <= 0 {
		return nil
	}
	out := make([]core.Date, 0, min(count, maxPrealloc))
	for d := range Occurrences(rule, today) {
		out = append(out, d)
		if len(out) == count {
			break
		}
	}
	return out
}

// Project decorates the next count occurrences with the rule's template.
func Project(rule core.RecurrenceRule, today core.Date, count int) []core.Occurrence {
	dates := NextOccurrences(rule, today, count)
	out := make([]core.Occurrence, len(dates))
	for i, d := range dates {
		out[i] = rule.OccurrenceOn(d)
	}
	return out
}
