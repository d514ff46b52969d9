package recurrence

import (
	"testing"

	"fintrack/internal/core"
)

func TestIsDueToday(t *testing.T) {
	base := core.RecurrenceRule{
		Frequency: core.FrequencyWeekly,
		DayOfWeek: core.IntPtr(1),
		StartDate: core.NewDate(2024, 1, 1),
	}
	monday := core.NewDate(2024, 1, 15)

	tests := []struct {
		name  string
		mut   func(*core.RecurrenceRule)
		today core.Date
		want  bool
	}{
		{"never generated, matching day", func(*core.RecurrenceRule) {}, monday, true},
		{"non-matching day", func(*core.RecurrenceRule) {}, monday.AddDays(1), false},
		{"before start", func(r *core.RecurrenceRule) { r.StartDate = core.NewDate(2024, 2, 1) }, monday, false},
		{"start is today", func(r *core.RecurrenceRule) { r.StartDate = monday }, monday, true},
		{"already generated today", func(r *core.RecurrenceRule) { r.LastGeneratedDate = monday }, monday, false},
		{"generated last week", func(r *core.RecurrenceRule) { r.LastGeneratedDate = monday.AddDays(-7) }, monday, true},
		{"after end", func(r *core.RecurrenceRule) { r.EndDate = core.NewDate(2024, 1, 14) }, monday, false},
		{"end is today", func(r *core.RecurrenceRule) { r.EndDate = monday }, monday, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.mut(&r)
			if got := IsDueToday(r, tt.today); got != tt.want {
				t.Errorf("IsDueToday() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsDueToday_MarkerIsIdempotent(t *testing.T) {
	rule := core.RecurrenceRule{Frequency: core.FrequencyDaily, StartDate: core.NewDate(2024, 1, 1)}
	for d := core.NewDate(2024, 1, 1); d.Before(core.NewDate(2024, 4, 1)); d = d.AddDays(1) {
		rule.LastGeneratedDate = d
		if IsDueToday(rule, d) {
			t.Fatalf("IsDueToday(%s) = true after stamping %s", d, d)
		}
	}
}
