// Package schedule computes occurrence times for recurrence
// specifications. The calculator is a pure function of the spec and a
// reference time so the generator's sweep logic stays deterministic and
// testable.
package schedule

import (
	"time"

	"upkeep/internal/types"
)

// NextOccurrence returns the next occurrence of spec strictly after ref,
// or nil when the spec produces no further occurrences.
//
// All calendar math runs in the spec's timezone; a malformed or missing
// timezone degrades to ref's location rather than failing the caller.
// Syntactically valid specs never produce an error here: day-of-month
// values past a month's length are rejected at template-write time, not
// by the calculator.
func NextOccurrence(spec types.ScheduleSpec, ref time.Time) *time.Time {
	loc := ref.Location()
	if spec.Timezone != "" {
		if tz, err := time.LoadLocation(spec.Timezone); err == nil {
			loc = tz
		}
	}
	zoned := ref.In(loc)
	hour, minute := timeOfDay(spec.TimeOfDay)

	switch spec.Type {
	case types.ScheduleDaily:
		return ptr(nextDaily(zoned, hour, minute))
	case types.ScheduleWeekly:
		return ptr(nextWeekly(zoned, spec.DaysOfWeek, hour, minute))
	case types.ScheduleMonthly:
		return ptr(nextMonthly(zoned, spec.DayOfMonth, hour, minute))
	case types.ScheduleDate:
		// Single-shot: once consumed (lastRunAt set) there is no next run.
		if spec.LastRunAt != nil || spec.Date == nil {
			return nil
		}
		return ptr(spec.Date.In(loc))
	default:
		return nil
	}
}

func nextDaily(ref time.Time, hour, minute int) time.Time {
	at := atTime(ref, hour, minute)
	if !at.After(ref) {
		at = atTime(ref.AddDate(0, 0, 1), hour, minute)
	}
	return at
}

func nextWeekly(ref time.Time, days []int, hour, minute int) time.Time {
	wanted := make(map[int]bool, len(days))
	for _, d := range days {
		wanted[d] = true
	}
	if len(wanted) == 0 {
		wanted[isoWeekday(ref)] = true
	}

	// Scan forward a full week inclusive for the first matching day whose
	// instant lies strictly after ref.
	for offset := 0; offset <= 7; offset++ {
		day := ref.AddDate(0, 0, offset)
		if !wanted[isoWeekday(day)] {
			continue
		}
		at := atTime(day, hour, minute)
		if at.After(ref) {
			return at
		}
	}
	// Unreachable for well-formed day sets, but guarantees termination.
	return atTime(ref.AddDate(0, 0, 7), hour, minute)
}

func nextMonthly(ref time.Time, dayOfMonth, hour, minute int) time.Time {
	if dayOfMonth == 0 {
		dayOfMonth = ref.Day()
	}
	at := time.Date(ref.Year(), ref.Month(), dayOfMonth, hour, minute, 0, 0, ref.Location())
	if !at.After(ref) {
		// Month arithmetic through time.Date so December rolls into
		// January of the next year.
		at = time.Date(ref.Year(), ref.Month()+1, dayOfMonth, hour, minute, 0, 0, ref.Location())
	}
	return at
}

// isoWeekday maps time.Weekday onto ISO numbering, Monday=1 .. Sunday=7.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// timeOfDay parses an HH:MM string, falling back to the default when the
// value is empty or malformed. Format validity is enforced at write time.
func timeOfDay(s string) (hour, minute int) {
	if s == "" {
		s = types.DefaultTimeOfDay
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		t, _ = time.Parse("15:04", types.DefaultTimeOfDay)
	}
	return t.Hour(), t.Minute()
}

func atTime(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

func ptr(t time.Time) *time.Time { return &t }
