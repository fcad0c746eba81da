package schedule

import (
	"time"

	"prenota/internal/models"
)

// GenerateSlots cuts the window into candidate slots using the policy.
//
// Generation starts at the later of the opening time and the policy start and steps
// by the policy interval. A slot is emitted while it ends no later than the earlier of
// the closing time and the policy end. Slots touching an excluded range are skipped,
// and so are slots that already started relative to now.
func GenerateSlots(w Window, policy *models.SlotPolicy, date, now time.Time) []models.TimeRange {
	if !w.Open() || policy == nil || policy.SlotDurationMinutes <= 0 || policy.Interval() <= 0 {
		return nil
	}

	day, today := models.DateOf(date), models.DateOf(now)
	if day.Before(today) {
		return nil
	}
	sameDay := day.Equal(today)
	nowOffset := sinceMidnight(now)

	bounds := w.Hours.Clip(policy.Bounds())
	if bounds.Empty() {
		return nil
	}

	var slots []models.TimeRange
	for cursor := bounds.Start; cursor.Add(policy.SlotDurationMinutes) <= bounds.End; cursor = cursor.Add(policy.Interval()) {
		slot := models.TimeRange{Start: cursor, End: cursor.Add(policy.SlotDurationMinutes)}

		if isExcluded(slot, w.Excluded) {
			continue
		}
		if sameDay && time.Duration(slot.Start)*time.Minute < nowOffset {
			continue
		}
		slots = append(slots, slot)
	}
	return slots
}

func isExcluded(slot models.TimeRange, excluded []models.TimeRange) bool {
	for _, ex := range excluded {
		if slot.Overlaps(ex) {
			return true
		}
	}
	return false
}

// sinceMidnight is the wall-clock offset of t within its own day.
func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

// SlotsPerDay estimates how many slots the policy yields for an opening window,
// ignoring breaks and exceptions.
func SlotsPerDay(policy *models.SlotPolicy, open, closing models.Clock) int {
	if policy == nil {
		return 0
	}
	return policy.SlotsPerDay(models.TimeRange{Start: open, End: closing})
}

// AvailableSlots keeps the slots that can take at least one more reservation.
func AvailableSlots(slots []models.TimeSlot) []models.TimeSlot {
	var available []models.TimeSlot
	for _, s := range slots {
		if s.Available() {
			available = append(available, s)
		}
	}
	return available
}

// ConsecutiveRuns groups available slots that follow each other without a gap.
func ConsecutiveRuns(slots []models.TimeSlot) [][]models.TimeSlot {
	available := AvailableSlots(slots)
	if len(available) == 0 {
		return nil
	}

	var groups [][]models.TimeSlot
	current := []models.TimeSlot{available[0]}

	for i := 1; i < len(available); i++ {
		if available[i].Start == current[len(current)-1].End {
			current = append(current, available[i])
		} else {
			groups = append(groups, current)
			current = []models.TimeSlot{available[i]}
		}
	}
	groups = append(groups, current)

	return groups
}

// CanBookConsecutive checks that count back-to-back available slots begin at start.
func CanBookConsecutive(slots []models.TimeSlot, start models.Clock, count int) bool {
	if count <= 0 {
		return false
	}

	startIdx := -1
	for i, s := range slots {
		if s.Start == start {
			startIdx = i
			break
		}
	}
	if startIdx < 0 || startIdx+count > len(slots) {
		return false
	}

	for i := 0; i < count; i++ {
		idx := startIdx + i
		if !slots[idx].Available() {
			return false
		}
		if i > 0 && slots[idx].Start != slots[idx-1].End {
			return false
		}
	}
	return true
}
