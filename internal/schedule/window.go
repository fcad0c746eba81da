package schedule

import (
	"sort"

	"prenota/internal/models"
)

// ClosedReason explains why a date yields no slots.
type ClosedReason string

const (
	ReasonNoConfiguration ClosedReason = "NO_CONFIGURATION"
	ReasonWeeklyClosed    ClosedReason = "WEEKLY_CLOSED"
	ReasonExceptionClosed ClosedReason = "EXCEPTION_CLOSED"
	ReasonFullyBooked     ClosedReason = "FULLY_BOOKED"
)

// Window is the effective operating window of one date: the opening hours minus the
// excluded ranges. Closed is set instead when the date does not open at all.
type Window struct {
	Hours    models.TimeRange
	Excluded []models.TimeRange
	Closed   ClosedReason
}

// Open reports whether the window has opening hours.
func (w Window) Open() bool { return w.Closed == "" }

// EffectiveWindow merges the weekly row with the date's exceptions.
//
// A full closure always wins. A weekly closed day stays closed unless an hours override
// opens it. The override replaces the weekly hours; the weekly break and every partial
// closure are then subtracted from whichever hours apply.
func EffectiveWindow(day *models.WeeklyDay, exs DayExceptions) Window {
	if exs.FullClosure != nil {
		return Window{Closed: ReasonExceptionClosed}
	}

	var hours models.TimeRange
	switch {
	case exs.Override != nil:
		hours = exs.Override.Window
	default:
		weekly, ok := day.Hours()
		if !ok {
			return Window{Closed: ReasonWeeklyClosed}
		}
		hours = weekly
	}

	var excluded []models.TimeRange
	if br, ok := day.Break(); ok {
		excluded = append(excluded, br)
	}
	for i := range exs.Partials {
		excluded = append(excluded, exs.Partials[i].Window)
	}

	return Window{Hours: hours, Excluded: mergeRanges(excluded, hours)}
}

// mergeRanges clips every range to bounds, drops the empty ones and merges the rest
// into a sorted list of disjoint ranges.
func mergeRanges(ranges []models.TimeRange, bounds models.TimeRange) []models.TimeRange {
	clipped := make([]models.TimeRange, 0, len(ranges))
	for _, r := range ranges {
		c := r.Clip(bounds)
		if !c.Empty() {
			clipped = append(clipped, c)
		}
	}
	if len(clipped) == 0 {
		return nil
	}

	sort.Slice(clipped, func(i, j int) bool { return clipped[i].Start < clipped[j].Start })

	merged := []models.TimeRange{clipped[0]}
	for _, r := range clipped[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}
