package models

import "time"

// TimeSlot is one bookable window produced by the availability resolver. It is never persisted.
type TimeSlot struct {
	Date              time.Time `json:"date"`
	Start             Clock     `json:"start"`
	End               Clock     `json:"end"`
	Capacity          int       `json:"capacity"`
	Booked            int       `json:"booked"`
	CapacityRemaining int       `json:"capacity_remaining"`
}

// Range returns the slot's [Start, End) window.
func (s TimeSlot) Range() TimeRange {
	return TimeRange{Start: s.Start, End: s.End}
}

// StartAt returns the slot start on its date.
func (s TimeSlot) StartAt() time.Time { return s.Start.On(s.Date) }

// EndAt returns the slot end on its date.
func (s TimeSlot) EndAt() time.Time { return s.End.On(s.Date) }

// Available reports whether at least one more reservation fits.
func (s TimeSlot) Available() bool { return s.CapacityRemaining > 0 }
