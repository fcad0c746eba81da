package schedule

import (
	"fmt"
	"time"

	"prenota/internal/models"
)

// Selection is the outcome of SelectVersion.
type Selection struct {
	Version models.Version
	Found   bool
	// Ambiguous is set when more than one active version covered the date. The
	// choice is still deterministic but signals a configuration problem.
	Ambiguous  bool
	Candidates int
}

// SelectVersion picks the version that governs serviceID on date: the active version
// covering the date with the latest EffectiveFrom, ties broken by the highest ID.
func SelectVersion(versions []models.Version, serviceID int64, date time.Time) Selection {
	var sel Selection
	for i := range versions {
		v := versions[i]
		if v.ServiceID != serviceID || !v.ValidFor(date) {
			continue
		}
		sel.Candidates++
		if !sel.Found || newer(&v, &sel.Version) {
			sel.Version = v
			sel.Found = true
		}
	}
	sel.Ambiguous = sel.Candidates > 1
	return sel
}

func newer(a, b *models.Version) bool {
	af, bf := models.DateOf(a.EffectiveFrom), models.DateOf(b.EffectiveFrom)
	if !af.Equal(bf) {
		return af.After(bf)
	}
	return a.ID > b.ID
}

// CheckNoOverlap rejects candidate when it would share a date with another active
// version of the same service. Archived versions and candidate itself are ignored.
func CheckNoOverlap(existing []models.Version, candidate *models.Version) error {
	if candidate.State != models.VersionActive {
		return nil
	}
	for i := range existing {
		v := &existing[i]
		if v.ID == candidate.ID || v.ServiceID != candidate.ServiceID || v.State != models.VersionActive {
			continue
		}
		if v.Overlaps(candidate) {
			return fmt.Errorf("%w: version %d (%s)", ErrVersionOverlap, v.ID, describeRange(v))
		}
	}
	return nil
}

func describeRange(v *models.Version) string {
	to := "open"
	if v.EffectiveTo != nil {
		to = models.FormatDate(*v.EffectiveTo)
	}
	return models.FormatDate(v.EffectiveFrom) + ".." + to
}

// CanTransition reports whether a version may move from one state to another.
// The only transition is ACTIVE to ARCHIVED.
func CanTransition(from, to models.VersionState) bool {
	return from == models.VersionActive && to == models.VersionArchived
}

// Transition returns ErrInvalidTransition for anything CanTransition rejects.
func Transition(v *models.Version, to models.VersionState) error {
	if !CanTransition(v.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, v.State, to)
	}
	v.State = to
	return nil
}
