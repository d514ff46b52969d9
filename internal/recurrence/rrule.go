package recurrence

import (
	"fmt"

	"github.com/teambition/rrule-go"

	"fintrack/internal/core"
)

var weekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// ToROption expresses rule as an RFC 5545 recurrence.
//
// Month-end clamping has no direct RRULE form. A day-31 rule becomes
// BYMONTHDAY=28,29,30,31;BYSETPOS=-1, which selects the latest of those days
// that exists in each month.
func ToROption(rule core.RecurrenceRule) (rrule.ROption, error) {
	opt := rrule.ROption{
		Interval: 1,
		Dtstart:  rule.StartDate.Time,
	}
	if rule.HasEnd() {
		opt.Until = rule.EndDate.Time
	}

	switch rule.Frequency {
	case core.FrequencyDaily:
		opt.Freq = rrule.DAILY
	case core.FrequencyWeekly:
		if rule.DayOfWeek == nil || *rule.DayOfWeek < 0 || *rule.DayOfWeek > 6 {
			return rrule.ROption{}, fmt.Errorf("weekly rule %s has no valid day_of_week", rule.ID)
		}
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = []rrule.Weekday{weekdays[*rule.DayOfWeek]}
	case core.FrequencyMonthly:
		if rule.DayOfMonth == nil || *rule.DayOfMonth < 1 || *rule.DayOfMonth > 31 {
			return rrule.ROption{}, fmt.Errorf("monthly rule %s has no valid day_of_month", rule.ID)
		}
		opt.Freq = rrule.MONTHLY
		day := *rule.DayOfMonth
		if day <= 28 {
			opt.Bymonthday = []int{day}
		} else {
			for d := 28; d <= day; d++ {
				opt.Bymonthday = append(opt.Bymonthday, d)
			}
			opt.Bysetpos = []int{-1}
		}
	default:
		return rrule.ROption{}, fmt.Errorf("unknown frequency: %s", rule.Frequency)
	}
	return opt, nil
}

// ToRRule builds an rrule-go recurrence equivalent to rule.
func ToRRule(rule core.RecurrenceRule) (*rrule.RRule, error) {
	opt, err := ToROption(rule)
	if err != nil {
		return nil, err
	}
	return rrule.NewRRule(opt)
}

// RRuleString renders rule as DTSTART and RRULE lines for calendar export.
func RRuleString(rule core.RecurrenceRule) (string, error) {
	r, err := ToRRule(rule)
	if err != nil {
		return "", err
	}
	return r.String(), nil
}
