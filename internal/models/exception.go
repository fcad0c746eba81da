package models

import (
	"fmt"
	"time"
)

// ExceptionType classifies an exception for reporting. It never changes merge semantics.
type ExceptionType string

const (
	ExceptionClosure       ExceptionType = "CLOSURE"
	ExceptionMaintenance   ExceptionType = "MAINTENANCE"
	ExceptionSpecialEvent  ExceptionType = "SPECIAL_EVENT"
	ExceptionStaffShortage ExceptionType = "STAFF_SHORTAGE"
	ExceptionFullyBooked   ExceptionType = "FULLY_BOOKED"
	ExceptionCustom        ExceptionType = "CUSTOM"
)

var exceptionTypes = map[ExceptionType]struct{}{
	ExceptionClosure:       {},
	ExceptionMaintenance:   {},
	ExceptionSpecialEvent:  {},
	ExceptionStaffShortage: {},
	ExceptionFullyBooked:   {},
	ExceptionCustom:        {},
}

func (t ExceptionType) Valid() bool {
	_, ok := exceptionTypes[t]
	return ok
}

// ExceptionMode selects which variant of Exception is populated.
type ExceptionMode string

const (
	ModeFullClosure    ExceptionMode = "FULL_CLOSURE"
	ModePartialClosure ExceptionMode = "PARTIAL_CLOSURE"
	ModeHoursOverride  ExceptionMode = "HOURS_OVERRIDE"
)

// Exception is a date-specific override within a version. Mode decides how Window is
// read: ignored for a full closure, the blocked sub-window for a partial closure, and
// the replacement opening hours for an hours override.
type Exception struct {
	ID        int64         `json:"id"`
	VersionID int64         `json:"version_id"`
	Date      time.Time     `json:"exception_date"`
	Type      ExceptionType `json:"exception_type"`
	Mode      ExceptionMode `json:"mode"`
	Window    TimeRange     `json:"window"`
	Note      string        `json:"note,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewFullClosure closes the whole date.
func NewFullClosure(date time.Time, typ ExceptionType, note string) Exception {
	return Exception{Date: DateOf(date), Type: typ, Mode: ModeFullClosure, Note: note}
}

// NewPartialClosure blocks [start, end) on date.
func NewPartialClosure(date time.Time, typ ExceptionType, start, end Clock, note string) Exception {
	return Exception{
		Date:   DateOf(date),
		Type:   typ,
		Mode:   ModePartialClosure,
		Window: TimeRange{Start: start, End: end},
		Note:   note,
	}
}

// NewHoursOverride replaces the weekly opening hours on date.
func NewHoursOverride(date time.Time, typ ExceptionType, open, closing Clock, note string) Exception {
	return Exception{
		Date:   DateOf(date),
		Type:   typ,
		Mode:   ModeHoursOverride,
		Window: TimeRange{Start: open, End: closing},
		Note:   note,
	}
}

func (e *Exception) IsFullClosure() bool    { return e.Mode == ModeFullClosure }
func (e *Exception) IsPartialClosure() bool { return e.Mode == ModePartialClosure }
func (e *Exception) IsHoursOverride() bool  { return e.Mode == ModeHoursOverride }

func (e *Exception) Validate() error {
	if e.Date.IsZero() {
		return invalid("exception_date", "is required")
	}
	if !e.Type.Valid() {
		return invalid("exception_type", "unknown type %q", e.Type)
	}

	switch e.Mode {
	case ModeFullClosure:
		if e.Window != (TimeRange{}) {
			return invalid("window", "a full closure carries no time window")
		}
	case ModePartialClosure:
		if e.Window.Empty() {
			return invalid("end_time", "must be after start_time")
		}
	case ModeHoursOverride:
		if e.Window.Empty() {
			return invalid("override_closing_time", "must be after override_opening_time")
		}
	default:
		return invalid("mode", "unknown mode %q", e.Mode)
	}

	if e.Window.End > MinutesPerDay {
		return invalid("window", "must not end after 24:00")
	}
	return nil
}

// ExceptionColumns is the flat, nullable storage layout of an Exception.
type ExceptionColumns struct {
	IsFullyClosed       bool
	StartTime           *Clock
	EndTime             *Clock
	OverrideOpeningTime *Clock
	OverrideClosingTime *Clock
}

// Columns flattens the exception for storage.
func (e *Exception) Columns() ExceptionColumns {
	var cols ExceptionColumns
	switch e.Mode {
	case ModeFullClosure:
		cols.IsFullyClosed = true
	case ModePartialClosure:
		start, end := e.Window.Start, e.Window.End
		cols.StartTime, cols.EndTime = &start, &end
	case ModeHoursOverride:
		open, closing := e.Window.Start, e.Window.End
		cols.OverrideOpeningTime, cols.OverrideClosingTime = &open, &closing
	}
	return cols
}

// Mode decodes the storage layout, rejecting rows that mix modes.
func (c ExceptionColumns) Mode() (ExceptionMode, TimeRange, error) {
	hasPartial := c.StartTime != nil || c.EndTime != nil
	hasOverride := c.OverrideOpeningTime != nil || c.OverrideClosingTime != nil

	switch {
	case c.IsFullyClosed && !hasPartial && !hasOverride:
		return ModeFullClosure, TimeRange{}, nil
	case c.IsFullyClosed:
		return "", TimeRange{}, fmt.Errorf("fully closed exception carries time fields")
	case hasPartial && hasOverride:
		return "", TimeRange{}, fmt.Errorf("exception mixes partial closure and hours override")
	case hasPartial:
		if c.StartTime == nil || c.EndTime == nil {
			return "", TimeRange{}, fmt.Errorf("partial closure needs both start_time and end_time")
		}
		return ModePartialClosure, TimeRange{Start: *c.StartTime, End: *c.EndTime}, nil
	case hasOverride:
		if c.OverrideOpeningTime == nil || c.OverrideClosingTime == nil {
			return "", TimeRange{}, fmt.Errorf("hours override needs both opening and closing time")
		}
		return ModeHoursOverride, TimeRange{Start: *c.OverrideOpeningTime, End: *c.OverrideClosingTime}, nil
	default:
		return "", TimeRange{}, fmt.Errorf("exception has no mode: not closed and no time fields")
	}
}
