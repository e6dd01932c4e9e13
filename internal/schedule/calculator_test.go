package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upkeep/internal/types"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestNextOccurrenceDaily(t *testing.T) {
	spec := types.ScheduleSpec{Type: types.ScheduleDaily, TimeOfDay: "08:00"}

	// Before today's slot: same day.
	ref := time.Date(2025, 6, 10, 6, 30, 0, 0, time.UTC)
	got := NextOccurrence(spec, ref)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC), *got)

	// Exactly at the slot: strictly after means tomorrow.
	ref = time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	got = NextOccurrence(spec, ref)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, 6, 11, 8, 0, 0, 0, time.UTC), *got)

	// Past the slot: tomorrow.
	ref = time.Date(2025, 6, 10, 9, 15, 0, 0, time.UTC)
	got = NextOccurrence(spec, ref)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, 6, 11, 8, 0, 0, 0, time.UTC), *got)
}

func TestNextOccurrenceDailyDefaultTimeOfDay(t *testing.T) {
	spec := types.ScheduleSpec{Type: types.ScheduleDaily}
	ref := time.Date(2025, 6, 10, 6, 0, 0, 0, time.UTC)
	got := NextOccurrence(spec, ref)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC), *got)
}

func TestNextOccurrenceWeekly(t *testing.T) {
	// Tuesday and Thursday at 09:00.
	spec := types.ScheduleSpec{
		Type:       types.ScheduleWeekly,
		TimeOfDay:  "09:00",
		DaysOfWeek: []int{2, 4},
	}

	// Monday 10:00 -> Tuesday 09:00 of the same week.
	monday := time.Date(2025, 6, 9, 10, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, monday.Weekday())
	got := NextOccurrence(spec, monday)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC), *got)
	assert.Equal(t, time.Tuesday, got.Weekday())

	// Tuesday 09:30 -> Thursday 09:00 of the same week.
	tuesday := time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)
	got = NextOccurrence(spec, tuesday)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC), *got)
	assert.Equal(t, time.Thursday, got.Weekday())

	// Thursday 09:30 -> Tuesday of next week.
	thursday := time.Date(2025, 6, 12, 9, 30, 0, 0, time.UTC)
	got = NextOccurrence(spec, thursday)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, 6, 17, 9, 0, 0, 0, time.UTC), *got)
}

func TestNextOccurrenceWeeklySundayISO(t *testing.T) {
	// ISO day 7 is Sunday.
	spec := types.ScheduleSpec{
		Type:       types.ScheduleWeekly,
		TimeOfDay:  "12:00",
		DaysOfWeek: []int{7},
	}
	friday := time.Date(2025, 6, 13, 8, 0, 0, 0, time.UTC)
	got := NextOccurrence(spec, friday)
	require.NotNil(t, got)
	assert.Equal(t, time.Sunday, got.Weekday())
	assert.Equal(t, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC), *got)
}

func TestNextOccurrenceWeeklyDefaultsToReferenceDay(t *testing.T) {
	spec := types.ScheduleSpec{Type: types.ScheduleWeekly, TimeOfDay: "09:00"}

	// Before the slot: today counts.
	ref := time.Date(2025, 6, 11, 7, 0, 0, 0, time.UTC)
	got := NextOccurrence(spec, ref)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC), *got)

	// Past the slot: same weekday next week.
	ref = time.Date(2025, 6, 11, 10, 0, 0, 0, time.UTC)
	got = NextOccurrence(spec, ref)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, 6, 18, 9, 0, 0, 0, time.UTC), *got)
}

func TestNextOccurrenceMonthly(t *testing.T) {
	spec := types.ScheduleSpec{
		Type:       types.ScheduleMonthly,
		TimeOfDay:  "08:00",
		DayOfMonth: 15,
	}

	// Before the 15th: this month.
	ref := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)
	got := NextOccurrence(spec, ref)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC), *got)

	// After the 15th: next month.
	ref = time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)
	got = NextOccurrence(spec, ref)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, 7, 15, 8, 0, 0, 0, time.UTC), *got)

	// December rolls into January.
	ref = time.Date(2025, 12, 20, 12, 0, 0, 0, time.UTC)
	got = NextOccurrence(spec, ref)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC), *got)
}

func TestNextOccurrenceMonthlyDefaultsToReferenceDay(t *testing.T) {
	spec := types.ScheduleSpec{Type: types.ScheduleMonthly, TimeOfDay: "08:00"}
	ref := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	got := NextOccurrence(spec, ref)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, 7, 10, 8, 0, 0, 0, time.UTC), *got)
}

func TestNextOccurrenceDateSingleShot(t *testing.T) {
	at := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	spec := types.ScheduleSpec{Type: types.ScheduleDate, Date: &at}

	got := NextOccurrence(spec, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NotNil(t, got)
	assert.True(t, got.Equal(at))

	// Consumed: lastRunAt gates the type permanently.
	spec.LastRunAt = &at
	assert.Nil(t, NextOccurrence(spec, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)))

	// No date at all.
	assert.Nil(t, NextOccurrence(types.ScheduleSpec{Type: types.ScheduleDate}, time.Now()))
}

func TestNextOccurrenceTimezone(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	spec := types.ScheduleSpec{
		Type:      types.ScheduleDaily,
		TimeOfDay: "08:00",
		Timezone:  "America/New_York",
	}

	// 11:00 UTC is 07:00 in New York: still before today's slot there.
	ref := time.Date(2025, 6, 10, 11, 0, 0, 0, time.UTC)
	got := NextOccurrence(spec, ref)
	require.NotNil(t, got)
	assert.True(t, got.Equal(time.Date(2025, 6, 10, 8, 0, 0, 0, ny)))

	// Malformed timezone degrades to the reference location.
	spec.Timezone = "Not/AZone"
	got = NextOccurrence(spec, ref)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, 6, 11, 8, 0, 0, 0, time.UTC), *got)
}

func TestNextOccurrenceUnknownType(t *testing.T) {
	assert.Nil(t, NextOccurrence(types.ScheduleSpec{Type: "yearly"}, time.Now()))
}
