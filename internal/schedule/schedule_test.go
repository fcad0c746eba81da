package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prenota/internal/models"
)

func TestSelectVersion(t *testing.T) {
	june := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	mayEnd := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)

	versions := []models.Version{
		{ID: 1, ServiceID: 7, State: models.VersionActive, EffectiveFrom: june.AddDate(0, -6, 0), EffectiveTo: &mayEnd},
		{ID: 2, ServiceID: 7, State: models.VersionActive, EffectiveFrom: june},
		{ID: 3, ServiceID: 8, State: models.VersionActive, EffectiveFrom: june},
		{ID: 4, ServiceID: 7, State: models.VersionArchived, EffectiveFrom: june.AddDate(0, 0, 5)},
	}

	sel := SelectVersion(versions, 7, june.AddDate(0, 0, 10))
	require.True(t, sel.Found)
	assert.Equal(t, int64(2), sel.Version.ID)
	assert.False(t, sel.Ambiguous)

	sel = SelectVersion(versions, 7, mayEnd)
	require.True(t, sel.Found)
	assert.Equal(t, int64(1), sel.Version.ID)

	sel = SelectVersion(versions, 7, june.AddDate(-1, 0, 0))
	assert.False(t, sel.Found)

	sel = SelectVersion(versions, 9, june)
	assert.False(t, sel.Found)
}

func TestSelectVersion_Ambiguous(t *testing.T) {
	june := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	versions := []models.Version{
		{ID: 5, ServiceID: 1, State: models.VersionActive, EffectiveFrom: june},
		{ID: 3, ServiceID: 1, State: models.VersionActive, EffectiveFrom: june.AddDate(0, 0, 2)},
		{ID: 9, ServiceID: 1, State: models.VersionActive, EffectiveFrom: june.AddDate(0, 0, 2)},
	}

	sel := SelectVersion(versions, 1, june.AddDate(0, 0, 3))
	require.True(t, sel.Found)
	assert.True(t, sel.Ambiguous)
	assert.Equal(t, 3, sel.Candidates)
	assert.Equal(t, int64(9), sel.Version.ID, "latest start, then highest id")

	// Order of the input must not matter.
	reversed := []models.Version{versions[2], versions[1], versions[0]}
	assert.Equal(t, sel.Version.ID, SelectVersion(reversed, 1, june.AddDate(0, 0, 3)).Version.ID)
}

func TestCheckNoOverlap(t *testing.T) {
	june := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	augEnd := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	existing := []models.Version{
		{ID: 1, ServiceID: 1, State: models.VersionActive, EffectiveFrom: june, EffectiveTo: &augEnd},
		{ID: 2, ServiceID: 1, State: models.VersionArchived, EffectiveFrom: june.AddDate(0, 3, 0)},
		{ID: 3, ServiceID: 2, State: models.VersionActive, EffectiveFrom: june.AddDate(0, 3, 0)},
	}

	tests := []struct {
		name      string
		candidate models.Version
		wantErr   bool
	}{
		{"after the summer", models.Version{ServiceID: 1, State: models.VersionActive, EffectiveFrom: june.AddDate(0, 3, 0)}, false},
		{"shares last day", models.Version{ServiceID: 1, State: models.VersionActive, EffectiveFrom: augEnd}, true},
		{"updating itself", models.Version{ID: 1, ServiceID: 1, State: models.VersionActive, EffectiveFrom: june.AddDate(0, 0, 1)}, false},
		{"archived candidate", models.Version{ServiceID: 1, State: models.VersionArchived, EffectiveFrom: june}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckNoOverlap(existing, &tt.candidate)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrVersionOverlap)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTransition(t *testing.T) {
	assert.True(t, CanTransition(models.VersionActive, models.VersionArchived))
	assert.False(t, CanTransition(models.VersionArchived, models.VersionActive))
	assert.False(t, CanTransition(models.VersionActive, models.VersionActive))
	assert.False(t, CanTransition(models.VersionArchived, models.VersionArchived))

	v := models.Version{State: models.VersionActive}
	require.NoError(t, Transition(&v, models.VersionArchived))
	assert.Equal(t, models.VersionArchived, v.State)
	assert.ErrorIs(t, Transition(&v, models.VersionActive), ErrInvalidTransition)
}

func TestWeekView(t *testing.T) {
	days := []models.WeeklyDay{
		{VersionID: 1, DayOfWeek: time.Sunday},
		{VersionID: 1, DayOfWeek: time.Wednesday},
		{VersionID: 2, DayOfWeek: time.Tuesday},
		{VersionID: 1, DayOfWeek: time.Monday},
	}
	view := WeekView(days, 1)
	require.Len(t, view, 3)
	assert.Equal(t, time.Monday, view[0].DayOfWeek)
	assert.Equal(t, time.Wednesday, view[1].DayOfWeek)
	assert.Equal(t, time.Sunday, view[2].DayOfWeek)
}

func TestCheckCompatible(t *testing.T) {
	d := time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC)
	override := models.NewHoursOverride(d, models.ExceptionSpecialEvent, clock("10:00"), clock("14:00"), "")
	override.ID, override.VersionID = 1, 5
	partial := models.NewPartialClosure(d, models.ExceptionMaintenance, clock("11:00"), clock("12:00"), "")
	partial.ID, partial.VersionID = 2, 5
	existing := []models.Exception{override, partial}

	closure := models.NewFullClosure(d, models.ExceptionClosure, "")
	closure.VersionID = 5
	assert.ErrorIs(t, CheckCompatible(existing, &closure), ErrContradictoryExceptions)

	second := models.NewHoursOverride(d, models.ExceptionSpecialEvent, clock("16:00"), clock("20:00"), "")
	second.VersionID = 5
	assert.ErrorIs(t, CheckCompatible(existing, &second), ErrContradictoryExceptions)

	// Replacing the stored override with a new window is fine.
	second.ID = 1
	assert.NoError(t, CheckCompatible(existing, &second))

	another := models.NewPartialClosure(d, models.ExceptionMaintenance, clock("12:30"), clock("13:00"), "")
	another.VersionID = 5
	assert.NoError(t, CheckCompatible(existing, &another))

	otherVersion := models.NewFullClosure(d, models.ExceptionClosure, "")
	otherVersion.VersionID = 6
	assert.NoError(t, CheckCompatible(existing, &otherVersion))
}

func TestEffectiveWindow_MergesExclusions(t *testing.T) {
	day := models.WeeklyDay{
		DayOfWeek:   time.Friday,
		OpeningTime: clockPtr("10:00"),
		ClosingTime: clockPtr("22:00"),
		BreakStart:  clockPtr("15:00"),
		BreakEnd:    clockPtr("17:00"),
	}
	exs := DayExceptions{Partials: []models.Exception{
		{Mode: models.ModePartialClosure, Window: models.TimeRange{Start: clock("16:30"), End: clock("18:00")}},
		{Mode: models.ModePartialClosure, Window: models.TimeRange{Start: clock("08:00"), End: clock("09:00")}},
		{Mode: models.ModePartialClosure, Window: models.TimeRange{Start: clock("21:30"), End: clock("23:00")}},
	}}

	w := EffectiveWindow(&day, exs)
	require.True(t, w.Open())
	assert.Equal(t, models.TimeRange{Start: clock("10:00"), End: clock("22:00")}, w.Hours)
	assert.Equal(t, []models.TimeRange{
		{Start: clock("15:00"), End: clock("18:00")},
		{Start: clock("21:30"), End: clock("22:00")},
	}, w.Excluded)
}

func TestGenerateSlots_ClosedWindow(t *testing.T) {
	policy := &models.SlotPolicy{StartTime: clock("09:00"), EndTime: clock("18:00"), SlotDurationMinutes: 30, MaxConcurrentReservations: 1}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Nil(t, GenerateSlots(Window{Closed: ReasonWeeklyClosed}, policy, now, now))
	assert.Nil(t, GenerateSlots(Window{Hours: models.TimeRange{Start: clock("09:00"), End: clock("18:00")}}, nil, now, now))
}

func TestSlotsPerDay(t *testing.T) {
	policy := &models.SlotPolicy{StartTime: clock("09:00"), EndTime: clock("23:00"), SlotDurationMinutes: 30, MaxConcurrentReservations: 1}
	assert.Equal(t, 28, SlotsPerDay(policy, clock("09:00"), clock("23:00")))
	assert.Equal(t, 4, SlotsPerDay(policy, clock("08:00"), clock("11:00")), "clipped to policy start")
	assert.Equal(t, 0, SlotsPerDay(nil, clock("09:00"), clock("23:00")))
}

func TestConsecutiveRuns(t *testing.T) {
	mk := func(start, end string, remaining int) models.TimeSlot {
		return models.TimeSlot{Start: clock(start), End: clock(end), CapacityRemaining: remaining}
	}
	slots := []models.TimeSlot{
		mk("10:00", "10:30", 1),
		mk("10:30", "11:00", 2),
		mk("11:00", "11:30", 0),
		mk("11:30", "12:00", 1),
		mk("13:00", "13:30", 1),
		mk("13:30", "14:00", 1),
	}

	runs := ConsecutiveRuns(slots)
	require.Len(t, runs, 3)
	assert.Len(t, runs[0], 2)
	assert.Len(t, runs[1], 1)
	assert.Len(t, runs[2], 2)

	assert.True(t, CanBookConsecutive(slots, clock("10:00"), 2))
	assert.False(t, CanBookConsecutive(slots, clock("10:00"), 3))
	assert.False(t, CanBookConsecutive(slots, clock("11:30"), 2), "gap between 12:00 and 13:00")
	assert.True(t, CanBookConsecutive(slots, clock("13:00"), 2))
	assert.False(t, CanBookConsecutive(slots, clock("13:00"), 0))

	assert.Nil(t, ConsecutiveRuns(nil))
}

func TestApplyCapacity(t *testing.T) {
	d := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	candidates := []models.TimeRange{
		{Start: clock("10:00"), End: clock("10:30")},
		{Start: clock("10:30"), End: clock("11:00")},
	}

	slots := ApplyCapacity(candidates, d, 4, nil, map[models.Clock]int{clock("10:00"): 6}, 6)
	require.Len(t, slots, 2)
	assert.Equal(t, 0, slots[0].CapacityRemaining, "overbooked slot never goes negative")
	assert.Equal(t, 4, slots[1].CapacityRemaining)

	slots = ApplyCapacity(candidates, d, 4, intPtr(7), map[models.Clock]int{clock("10:00"): 1}, 6)
	assert.Equal(t, 1, slots[0].CapacityRemaining)
	assert.Equal(t, 1, slots[1].CapacityRemaining)

	slots = ApplyCapacity(candidates, d, 4, intPtr(5), nil, 6)
	assert.Equal(t, 0, slots[0].CapacityRemaining)
	assert.Equal(t, 0, slots[1].CapacityRemaining)

	assert.Nil(t, ApplyCapacity(nil, d, 4, nil, nil, 0))
}

func TestCheckFullWeek(t *testing.T) {
	week := baseSnapshot().WeeklyDays
	require.NoError(t, CheckFullWeek(week))

	err := CheckFullWeek(week[:6])
	assert.True(t, models.IsValidation(err))
	assert.Contains(t, err.Error(), "Saturday")

	doubled := append([]models.WeeklyDay{}, week...)
	doubled = append(doubled, week[time.Tuesday])
	err = CheckFullWeek(doubled)
	assert.True(t, models.IsValidation(err))
	assert.Contains(t, err.Error(), "Tuesday given 2 times")

	assert.True(t, models.IsValidation(CheckFullWeek(nil)))
}
