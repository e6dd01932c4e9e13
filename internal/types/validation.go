package types

import (
	"fmt"
	"time"
)

// Validation constraint constants.
const (
	MaxNameLength    = 200
	MaxChecklistSize = 50
	DefaultTimeOfDay = "08:00"
)

// validScheduleTypes is the closed set of recurrence kinds.
var validScheduleTypes = map[ScheduleType]bool{
	ScheduleDaily:   true,
	ScheduleWeekly:  true,
	ScheduleMonthly: true,
	ScheduleDate:    true,
}

// ValidateScheduleSpec checks a schedule specification at template-write time.
// The calculator assumes valid input and never raises, so every constraint it
// relies on is enforced here, before any transaction:
//   - type must be one of daily/weekly/monthly/date
//   - time_of_day, if set, must be a valid "HH:MM"
//   - days_of_week entries must be ISO weekdays 1..7
//   - day_of_month must fit every month it can land in (1..31; callers that
//     pick 29-31 accept the month-roll behavior, values outside 1..31 are
//     rejected)
//   - type=date requires a date
//
// A malformed timezone is NOT an error: the calculator degrades to system
// time, matching the behavior for templates imported from legacy systems.
func ValidateScheduleSpec(spec *ScheduleSpec) error {
	if spec == nil {
		return NewAppError(ErrCodeValidationInvalidSchedule, "schedule is required", nil)
	}
	if !validScheduleTypes[spec.Type] {
		return NewAppError(ErrCodeValidationInvalidSchedule,
			fmt.Sprintf("unknown schedule type %q", spec.Type), nil)
	}

	if spec.TimeOfDay != "" {
		if _, err := time.Parse("15:04", spec.TimeOfDay); err != nil {
			return NewAppError(ErrCodeValidationInvalidTimeOfDay,
				fmt.Sprintf("time_of_day %q is not a valid HH:MM value", spec.TimeOfDay), nil)
		}
	}

	switch spec.Type {
	case ScheduleWeekly:
		for _, d := range spec.DaysOfWeek {
			if d < 1 || d > 7 {
				return NewAppError(ErrCodeValidationInvalidSchedule,
					fmt.Sprintf("days_of_week entry %d outside ISO range 1..7", d), nil)
			}
		}
	case ScheduleMonthly:
		if spec.DayOfMonth != 0 && (spec.DayOfMonth < 1 || spec.DayOfMonth > 31) {
			return NewAppError(ErrCodeValidationInvalidSchedule,
				fmt.Sprintf("day_of_month %d outside range 1..31", spec.DayOfMonth), nil)
		}
	case ScheduleDate:
		if spec.Date == nil {
			return NewAppError(ErrCodeValidationInvalidSchedule,
				"schedule type 'date' requires a date", nil)
		}
	}

	return nil
}

// ValidateTemplate checks a preventive template before any write. Automatic
// active templates must name a site and department so the generator can file
// the ticket somewhere.
func ValidateTemplate(tpl *PreventiveTemplate) error {
	if tpl.Name == "" {
		return NewAppError(ErrCodeValidationMissingField, "name is required", nil)
	}
	if len(tpl.Name) > MaxNameLength {
		return NewAppError(ErrCodeValidationNameLength,
			fmt.Sprintf("name exceeds %d characters", MaxNameLength), nil)
	}
	if len(tpl.Checklist) > MaxChecklistSize {
		return NewAppError(ErrCodeValidationInvalidSchedule,
			fmt.Sprintf("checklist exceeds %d items", MaxChecklistSize), nil)
	}
	if err := ValidateScheduleSpec(&tpl.Schedule); err != nil {
		return err
	}
	if tpl.Automatic && tpl.Status == TemplateActive {
		if tpl.SiteID == "" || tpl.DepartmentID == "" {
			return NewAppError(ErrCodeValidationMissingField,
				"automatic templates require site_id and department_id", nil)
		}
	}
	return nil
}
