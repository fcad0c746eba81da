package models

import "time"

// SlotPolicy describes how an opening window is cut into bookable slots.
type SlotPolicy struct {
	ID                        int64     `json:"id"`
	VersionID                 int64     `json:"version_id"`
	StartTime                 Clock     `json:"start_time"`
	EndTime                   Clock     `json:"end_time"`
	SlotDurationMinutes       int       `json:"slot_duration_minutes"`
	BufferMinutes             int       `json:"buffer_minutes"`
	MaxConcurrentReservations int       `json:"max_concurrent_reservations"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// Interval is the generation step: slot length plus the trailing buffer.
func (p *SlotPolicy) Interval() int {
	return p.SlotDurationMinutes + p.BufferMinutes
}

// Bounds returns the outer generation window.
func (p *SlotPolicy) Bounds() TimeRange {
	return TimeRange{Start: p.StartTime, End: p.EndTime}
}

// SlotsPerDay estimates how many slots fit into an operating window, ignoring breaks.
func (p *SlotPolicy) SlotsPerDay(hours TimeRange) int {
	w := hours.Clip(p.Bounds())
	if w.Empty() || p.Interval() <= 0 || w.Minutes() < p.SlotDurationMinutes {
		return 0
	}
	return (w.Minutes()-p.SlotDurationMinutes)/p.Interval() + 1
}

func (p *SlotPolicy) Validate() error {
	if p.SlotDurationMinutes <= 0 {
		return invalid("slot_duration_minutes", "must be > 0")
	}
	if p.BufferMinutes < 0 {
		return invalid("buffer_minutes", "must be >= 0")
	}
	if p.MaxConcurrentReservations <= 0 {
		return invalid("max_concurrent_reservations", "must be > 0")
	}
	if p.StartTime >= p.EndTime {
		return invalid("start_time", "must be before end_time")
	}
	if p.EndTime > MinutesPerDay {
		return invalid("end_time", "must not be after 24:00")
	}
	return nil
}

// CheckCovers verifies the policy bounds include every open day of the version.
func (p *SlotPolicy) CheckCovers(days []WeeklyDay) error {
	bounds := p.Bounds()
	for i := range days {
		hours, ok := days[i].Hours()
		if !ok {
			continue
		}
		if !bounds.Contains(hours) {
			return invalid("start_time", "policy window %s does not cover %s hours %s",
				bounds, days[i].DayOfWeek, hours)
		}
	}
	return nil
}
