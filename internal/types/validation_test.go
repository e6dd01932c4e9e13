package types

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func specErrCode(t *testing.T, err error) ErrorCode {
	t.Helper()
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestValidateScheduleSpec(t *testing.T) {
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		spec     *ScheduleSpec
		wantCode ErrorCode // empty means valid
	}{
		{
			name: "daily with defaults",
			spec: &ScheduleSpec{Type: ScheduleDaily},
		},
		{
			name: "nil spec",
			spec: nil, wantCode: ErrCodeValidationInvalidSchedule,
		},
		{
			name:     "unknown type",
			spec:     &ScheduleSpec{Type: ScheduleType("hourly")},
			wantCode: ErrCodeValidationInvalidSchedule,
		},
		{
			name:     "bad time of day",
			spec:     &ScheduleSpec{Type: ScheduleDaily, TimeOfDay: "25:00"},
			wantCode: ErrCodeValidationInvalidTimeOfDay,
		},
		{
			name: "weekly with valid days",
			spec: &ScheduleSpec{Type: ScheduleWeekly, DaysOfWeek: []int{1, 3, 7}},
		},
		{
			name:     "weekly day out of range",
			spec:     &ScheduleSpec{Type: ScheduleWeekly, DaysOfWeek: []int{0}},
			wantCode: ErrCodeValidationInvalidSchedule,
		},
		{
			name:     "weekly day above seven",
			spec:     &ScheduleSpec{Type: ScheduleWeekly, DaysOfWeek: []int{8}},
			wantCode: ErrCodeValidationInvalidSchedule,
		},
		{
			name: "monthly day 31 allowed",
			spec: &ScheduleSpec{Type: ScheduleMonthly, DayOfMonth: 31},
		},
		{
			name: "monthly zero day falls back to default",
			spec: &ScheduleSpec{Type: ScheduleMonthly},
		},
		{
			name:     "monthly day out of range",
			spec:     &ScheduleSpec{Type: ScheduleMonthly, DayOfMonth: 32},
			wantCode: ErrCodeValidationInvalidSchedule,
		},
		{
			name:     "date type requires date",
			spec:     &ScheduleSpec{Type: ScheduleDate},
			wantCode: ErrCodeValidationInvalidSchedule,
		},
		{
			name: "date type with date",
			spec: &ScheduleSpec{Type: ScheduleDate, Date: &date},
		},
		{
			// Legacy imports carry junk timezones; the calculator degrades
			// rather than blocking the write.
			name: "malformed timezone accepted",
			spec: &ScheduleSpec{Type: ScheduleDaily, Timezone: "Mars/Olympus_Mons"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScheduleSpec(tt.spec)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantCode, specErrCode(t, err))
		})
	}
}

func validTemplate() *PreventiveTemplate {
	return &PreventiveTemplate{
		Name:         "Monthly boiler inspection",
		Status:       TemplateActive,
		Automatic:    true,
		SiteID:       "site_1",
		DepartmentID: "dep_1",
		Schedule:     ScheduleSpec{Type: ScheduleMonthly, DayOfMonth: 1},
	}
}

func TestValidateTemplate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, ValidateTemplate(validTemplate()))
	})

	t.Run("missing name", func(t *testing.T) {
		tpl := validTemplate()
		tpl.Name = ""
		assert.Equal(t, ErrCodeValidationMissingField, specErrCode(t, ValidateTemplate(tpl)))
	})

	t.Run("name too long", func(t *testing.T) {
		tpl := validTemplate()
		tpl.Name = strings.Repeat("x", MaxNameLength+1)
		assert.Equal(t, ErrCodeValidationNameLength, specErrCode(t, ValidateTemplate(tpl)))
	})

	t.Run("checklist too large", func(t *testing.T) {
		tpl := validTemplate()
		tpl.Checklist = make([]ChecklistItem, MaxChecklistSize+1)
		assert.Equal(t, ErrCodeValidationInvalidSchedule, specErrCode(t, ValidateTemplate(tpl)))
	})

	t.Run("invalid schedule propagates", func(t *testing.T) {
		tpl := validTemplate()
		tpl.Schedule.Type = ScheduleType("fortnightly")
		assert.Equal(t, ErrCodeValidationInvalidSchedule, specErrCode(t, ValidateTemplate(tpl)))
	})

	t.Run("automatic active template requires placement", func(t *testing.T) {
		tpl := validTemplate()
		tpl.SiteID = ""
		assert.Equal(t, ErrCodeValidationMissingField, specErrCode(t, ValidateTemplate(tpl)))

		tpl = validTemplate()
		tpl.DepartmentID = ""
		assert.Equal(t, ErrCodeValidationMissingField, specErrCode(t, ValidateTemplate(tpl)))
	})

	t.Run("manual template needs no placement", func(t *testing.T) {
		tpl := validTemplate()
		tpl.Automatic = false
		tpl.SiteID = ""
		tpl.DepartmentID = ""
		assert.NoError(t, ValidateTemplate(tpl))
	})

	t.Run("paused automatic template needs no placement", func(t *testing.T) {
		tpl := validTemplate()
		tpl.Status = TemplatePaused
		tpl.SiteID = ""
		tpl.DepartmentID = ""
		assert.NoError(t, ValidateTemplate(tpl))
	})
}
