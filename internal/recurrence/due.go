package recurrence

import "fintrack/internal/core"

// IsDueToday reports whether rule should be materialized on today.
// A rule is never due before its start, after its end, or twice on the
// same day once its marker has been stamped.
func IsDueToday(rule core.RecurrenceRule, today core.Date) bool {
	if today.Before(rule.StartDate) {
		return false
	}
	if !rule.LastGeneratedDate.IsZero() && rule.LastGeneratedDate.Equal(today) {
		return false
	}
	if rule.HasEnd() && today.After(rule.EndDate) {
		return false
	}
	return Matches(rule, today)
}
