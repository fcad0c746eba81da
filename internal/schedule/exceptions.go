package schedule

import (
	"fmt"
	"sort"
	"time"

	"prenota/internal/models"
)

// DayExceptions groups the exceptions in force for one version and date by mode.
type DayExceptions struct {
	FullClosure *models.Exception
	Override    *models.Exception
	Partials    []models.Exception
}

// Empty reports whether no exception applies.
func (d DayExceptions) Empty() bool {
	return d.FullClosure == nil && d.Override == nil && len(d.Partials) == 0
}

// Validate checks every grouped exception on its own terms.
func (d DayExceptions) Validate() error {
	all := make([]*models.Exception, 0, len(d.Partials)+2)
	if d.FullClosure != nil {
		all = append(all, d.FullClosure)
	}
	if d.Override != nil {
		all = append(all, d.Override)
	}
	for i := range d.Partials {
		all = append(all, &d.Partials[i])
	}
	for _, e := range all {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: exception %d: %v", ErrInvalidConfiguration, e.ID, err)
		}
	}
	return nil
}

// ExceptionsFor filters exceptions down to versionID and the exact date and groups
// them. Two hours overrides, or a full closure next to an hours override, are
// contradictory and returned as ErrContradictoryExceptions.
func ExceptionsFor(exceptions []models.Exception, versionID int64, date time.Time) (DayExceptions, error) {
	var out DayExceptions
	for i := range exceptions {
		e := exceptions[i]
		if e.VersionID != versionID || !models.SameDate(e.Date, date) {
			continue
		}
		switch e.Mode {
		case models.ModeFullClosure:
			if out.FullClosure == nil {
				out.FullClosure = &e
			}
		case models.ModeHoursOverride:
			if out.Override != nil {
				return DayExceptions{}, fmt.Errorf("%w: %s has hours overrides %d and %d",
					ErrContradictoryExceptions, models.FormatDate(date), out.Override.ID, e.ID)
			}
			out.Override = &e
		case models.ModePartialClosure:
			out.Partials = append(out.Partials, e)
		default:
			return DayExceptions{}, fmt.Errorf("exception %d: unknown mode %q", e.ID, e.Mode)
		}
	}

	if out.FullClosure != nil && out.Override != nil {
		return DayExceptions{}, fmt.Errorf("%w: %s has full closure %d and hours override %d",
			ErrContradictoryExceptions, models.FormatDate(date), out.FullClosure.ID, out.Override.ID)
	}

	sort.SliceStable(out.Partials, func(i, j int) bool {
		return out.Partials[i].Window.Start < out.Partials[j].Window.Start
	})
	return out, nil
}

// CheckCompatible is the write-time counterpart of ExceptionsFor: it rejects candidate
// when, together with the exceptions already stored for the same version and date,
// it would make the date contradictory.
func CheckCompatible(existing []models.Exception, candidate *models.Exception) error {
	all := make([]models.Exception, 0, len(existing)+1)
	for i := range existing {
		if candidate.ID != 0 && existing[i].ID == candidate.ID {
			continue
		}
		all = append(all, existing[i])
	}
	all = append(all, *candidate)

	_, err := ExceptionsFor(all, candidate.VersionID, candidate.Date)
	return err
}
