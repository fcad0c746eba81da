package schedule

import (
	"fmt"
	"time"

	"prenota/internal/models"
)

// Status tells whether a Result lists slots or explains a closure.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Result is the answer for one service and date: either the slot list or the reason
// the date is closed.
type Result struct {
	ServiceID int64             `json:"service_id"`
	Date      string            `json:"date"`
	Status    Status            `json:"status"`
	Reason    ClosedReason      `json:"reason,omitempty"`
	VersionID int64             `json:"version_id,omitempty"`
	Slots     []models.TimeSlot `json:"slots"`

	// Ambiguous mirrors Selection.Ambiguous for the caller to log.
	Ambiguous bool `json:"-"`
}

// Closed reports whether the result carries a closure reason instead of slots.
func (r Result) Closed() bool { return r.Status == StatusClosed }

func openResult(snap *Snapshot, versionID int64, slots []models.TimeSlot) Result {
	if slots == nil {
		slots = []models.TimeSlot{}
	}
	return Result{
		ServiceID: snap.ServiceID,
		Date:      models.FormatDate(snap.Date),
		Status:    StatusOpen,
		VersionID: versionID,
		Slots:     slots,
	}
}

func closedResult(snap *Snapshot, versionID int64, reason ClosedReason) Result {
	return Result{
		ServiceID: snap.ServiceID,
		Date:      models.FormatDate(snap.Date),
		Status:    StatusClosed,
		Reason:    reason,
		VersionID: versionID,
		Slots:     []models.TimeSlot{},
	}
}

// Plan is the capacity-free part of resolution: the chosen configuration and the
// candidate slots. A caller that counts reservations per slot uses Plan to learn which
// slots to count before calling Resolve.
type Plan struct {
	Selection  Selection
	Day        models.WeeklyDay
	Window     Window
	Candidates []models.TimeRange
}

// Closed returns the closure reason, or "" when the plan has an opening window.
func (p Plan) Closed() ClosedReason {
	if !p.Selection.Found {
		return ReasonNoConfiguration
	}
	return p.Window.Closed
}

// PlanDay runs version selection, weekly lookup, exception merging and slot generation.
// Configuration errors are returned, never folded into an empty plan.
func PlanDay(snap *Snapshot, now time.Time) (Plan, error) {
	var plan Plan

	plan.Selection = SelectVersion(snap.Versions, snap.ServiceID, snap.Date)
	if !plan.Selection.Found {
		return plan, nil
	}
	version := plan.Selection.Version

	day, err := WeeklyDayFor(snap.WeeklyDays, version.ID, snap.Date)
	if err != nil {
		return plan, err
	}
	if err := day.Validate(); err != nil {
		return plan, fmt.Errorf("%w: version %d %s: %v", ErrInvalidConfiguration, version.ID, day.DayOfWeek, err)
	}
	plan.Day = day

	exs, err := ExceptionsFor(snap.Exceptions, version.ID, snap.Date)
	if err != nil {
		return plan, err
	}
	if err := exs.Validate(); err != nil {
		return plan, err
	}
	if snap.Policy != nil {
		if err := snap.Policy.Validate(); err != nil {
			return plan, fmt.Errorf("%w: slot policy %d: %v", ErrInvalidConfiguration, snap.Policy.ID, err)
		}
	}

	plan.Window = EffectiveWindow(&day, exs)
	if !plan.Window.Open() {
		return plan, nil
	}
	if snap.Policy == nil {
		plan.Window.Closed = ReasonNoConfiguration
		return plan, nil
	}
	if snap.Policy.VersionID != 0 && snap.Policy.VersionID != version.ID {
		return plan, fmt.Errorf("slot policy %d belongs to version %d, not %d",
			snap.Policy.ID, snap.Policy.VersionID, version.ID)
	}

	plan.Candidates = GenerateSlots(plan.Window, snap.Policy, snap.Date, now)
	return plan, nil
}

// Resolve computes the availability of snap.ServiceID on snap.Date as seen at now.
// Identical inputs always give identical results.
func Resolve(snap *Snapshot, now time.Time) (Result, error) {
	plan, err := PlanDay(snap, now)
	if err != nil {
		return Result{}, err
	}
	return Finish(snap, plan), nil
}

// Finish applies capacity to a plan produced by PlanDay for the same snapshot.
func Finish(snap *Snapshot, plan Plan) Result {
	versionID := plan.Selection.Version.ID
	if reason := plan.Closed(); reason != "" {
		res := closedResult(snap, versionID, reason)
		res.Ambiguous = plan.Selection.Ambiguous
		return res
	}

	dailyCap := plan.Day.MaxReservations
	if DailyCapReached(dailyCap, snap.DayTotal) {
		res := closedResult(snap, versionID, ReasonFullyBooked)
		res.Ambiguous = plan.Selection.Ambiguous
		return res
	}

	slots := ApplyCapacity(plan.Candidates, snap.Date, snap.Policy.MaxConcurrentReservations, dailyCap, snap.Booked, snap.DayTotal)

	var res Result
	if len(slots) > 0 && len(AvailableSlots(slots)) == 0 {
		res = closedResult(snap, versionID, ReasonFullyBooked)
	} else {
		res = openResult(snap, versionID, slots)
	}
	res.Ambiguous = plan.Selection.Ambiguous
	return res
}

// SlotDetails finds the slot starting at start.
func SlotDetails(res Result, start models.Clock) (models.TimeSlot, bool) {
	for _, s := range res.Slots {
		if s.Start == start {
			return s, true
		}
	}
	return models.TimeSlot{}, false
}

// OnlyOpen returns a copy of res without slots that have no capacity left.
func OnlyOpen(res Result) Result {
	if res.Closed() {
		return res
	}
	out := res
	out.Slots = AvailableSlots(res.Slots)
	if out.Slots == nil {
		out.Slots = []models.TimeSlot{}
	}
	return out
}
