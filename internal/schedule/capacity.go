package schedule

import (
	"time"

	"prenota/internal/models"
)

// ApplyCapacity turns candidate ranges into slots with remaining capacity.
//
// The per-slot cap is applied first: perSlot minus the reservations already booked
// for the slot. The daily cap then clamps every slot to what is left of the day; once
// dayTotal reaches the cap every slot reports zero. A nil dailyCap means unlimited.
func ApplyCapacity(candidates []models.TimeRange, date time.Time, perSlot int, dailyCap *int, booked map[models.Clock]int, dayTotal int) []models.TimeSlot {
	if len(candidates) == 0 {
		return nil
	}

	dayLeft := -1
	if dailyCap != nil {
		dayLeft = max(0, *dailyCap-dayTotal)
	}

	d := models.DateOf(date)
	slots := make([]models.TimeSlot, 0, len(candidates))
	for _, c := range candidates {
		n := booked[c.Start]
		remaining := max(0, perSlot-n)
		if dayLeft >= 0 && remaining > dayLeft {
			remaining = dayLeft
		}
		slots = append(slots, models.TimeSlot{
			Date:              d,
			Start:             c.Start,
			End:               c.End,
			Capacity:          perSlot,
			Booked:            n,
			CapacityRemaining: remaining,
		})
	}
	return slots
}

// DailyCapReached reports whether dayTotal has used up the daily cap.
func DailyCapReached(dailyCap *int, dayTotal int) bool {
	return dailyCap != nil && dayTotal >= *dailyCap
}
