package models

import "time"

// WeeklyDay is the recurring default schedule for one day of the week within a version.
type WeeklyDay struct {
	ID              int64        `json:"id"`
	VersionID       int64        `json:"version_id"`
	DayOfWeek       time.Weekday `json:"day_of_week"` // 0-6 (Sunday-Saturday)
	IsClosed        bool         `json:"is_closed"`
	OpeningTime     *Clock       `json:"opening_time,omitempty"`
	ClosingTime     *Clock       `json:"closing_time,omitempty"`
	BreakStart      *Clock       `json:"break_start,omitempty"`
	BreakEnd        *Clock       `json:"break_end,omitempty"`
	MaxReservations *int         `json:"max_reservations,omitempty"` // daily cap, nil = unlimited
	SlotDuration    int          `json:"slot_duration"`              // minutes
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Hours returns the opening window. ok is false for closed days.
func (d *WeeklyDay) Hours() (TimeRange, bool) {
	if d.IsClosed || d.OpeningTime == nil || d.ClosingTime == nil {
		return TimeRange{}, false
	}
	return TimeRange{Start: *d.OpeningTime, End: *d.ClosingTime}, true
}

// Break returns the break window if one is configured.
func (d *WeeklyDay) Break() (TimeRange, bool) {
	if d.BreakStart == nil || d.BreakEnd == nil {
		return TimeRange{}, false
	}
	return TimeRange{Start: *d.BreakStart, End: *d.BreakEnd}, true
}

func (d *WeeklyDay) Validate() error {
	if d.DayOfWeek < time.Sunday || d.DayOfWeek > time.Saturday {
		return invalid("day_of_week", "must be 0-6, got %d", d.DayOfWeek)
	}
	if d.SlotDuration < 0 {
		return invalid("slot_duration", "cannot be negative")
	}
	if d.MaxReservations != nil && *d.MaxReservations < 0 {
		return invalid("max_reservations", "cannot be negative")
	}
	if (d.BreakStart == nil) != (d.BreakEnd == nil) {
		return invalid("break", "break_start and break_end must be set together")
	}
	if d.IsClosed {
		return nil
	}

	if d.OpeningTime == nil || d.ClosingTime == nil {
		return invalid("opening_time", "opening_time and closing_time are required on open days")
	}
	if *d.OpeningTime >= *d.ClosingTime {
		return invalid("closing_time", "must be after opening_time")
	}
	if *d.ClosingTime > MinutesPerDay {
		return invalid("closing_time", "must not be after 24:00")
	}

	if br, ok := d.Break(); ok {
		if br.Empty() {
			return invalid("break_end", "must be after break_start")
		}
		if br.Start < *d.OpeningTime || br.End > *d.ClosingTime {
			return invalid("break", "break must be within working hours")
		}
	}
	return nil
}
