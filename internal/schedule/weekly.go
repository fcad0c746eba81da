package schedule

import (
	"fmt"
	"sort"
	"time"

	"prenota/internal/models"
)

// WeeklyDayFor returns the version's row for the weekday of date. A missing or
// duplicated row is a configuration error, never a closed day.
func WeeklyDayFor(days []models.WeeklyDay, versionID int64, date time.Time) (models.WeeklyDay, error) {
	weekday := models.DateOf(date).Weekday()

	var (
		found models.WeeklyDay
		count int
	)
	for i := range days {
		if days[i].VersionID != versionID || days[i].DayOfWeek != weekday {
			continue
		}
		found = days[i]
		count++
	}

	switch count {
	case 0:
		return models.WeeklyDay{}, fmt.Errorf("%w: version %d %s", ErrMissingWeeklyDay, versionID, weekday)
	case 1:
		return found, nil
	default:
		return models.WeeklyDay{}, fmt.Errorf("%w: version %d %s (%d rows)", ErrDuplicateWeeklyDay, versionID, weekday, count)
	}
}

// WeekView returns the version's rows ordered Monday first, the way schedules are
// usually read. Days without a row are left out.
func WeekView(days []models.WeeklyDay, versionID int64) []models.WeeklyDay {
	var out []models.WeeklyDay
	for i := range days {
		if days[i].VersionID == versionID {
			out = append(out, days[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return mondayFirst(out[i].DayOfWeek) < mondayFirst(out[j].DayOfWeek)
	})
	return out
}

func mondayFirst(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// CheckFullWeek verifies days holds exactly one row for each day of the week.
func CheckFullWeek(days []models.WeeklyDay) error {
	var seen [7]int
	for i := range days {
		d := days[i].DayOfWeek
		if d < time.Sunday || d > time.Saturday {
			return &models.ValidationError{Field: "weekly_days", Message: fmt.Sprintf("day_of_week %d is out of range", d)}
		}
		seen[d]++
	}
	for d, n := range seen {
		switch {
		case n == 0:
			return &models.ValidationError{Field: "weekly_days", Message: fmt.Sprintf("missing %s", time.Weekday(d))}
		case n > 1:
			return &models.ValidationError{Field: "weekly_days", Message: fmt.Sprintf("%s given %d times", time.Weekday(d), n)}
		}
	}
	return nil
}
