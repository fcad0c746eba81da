package models

import "time"

// VersionState is the lifecycle state of a schedule version.
type VersionState string

const (
	VersionActive   VersionState = "ACTIVE"
	VersionArchived VersionState = "ARCHIVED"
)

// Valid reports whether s is a known state.
func (s VersionState) Valid() bool {
	return s == VersionActive || s == VersionArchived
}

// Version is one effective date range of configuration for a service. It owns its
// weekly days, slot policy and exceptions.
type Version struct {
	ID            int64        `json:"id"`
	ServiceID     int64        `json:"service_id"`
	State         VersionState `json:"state"`
	EffectiveFrom time.Time    `json:"effective_from"`         // inclusive
	EffectiveTo   *time.Time   `json:"effective_to,omitempty"` // inclusive, nil = open-ended
	Notes         string       `json:"notes,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// ValidFor reports whether the version may be selected for date.
func (v *Version) ValidFor(date time.Time) bool {
	if v.State != VersionActive {
		return false
	}
	return v.Covers(date)
}

// Covers ignores the state and checks only the effective range.
func (v *Version) Covers(date time.Time) bool {
	d := DateOf(date)
	if d.Before(DateOf(v.EffectiveFrom)) {
		return false
	}
	if v.EffectiveTo != nil && d.After(DateOf(*v.EffectiveTo)) {
		return false
	}
	return true
}

// OverlapsRange reports whether the effective range intersects [from, to].
// A nil to means the range is open-ended.
func (v *Version) OverlapsRange(from time.Time, to *time.Time) bool {
	if to != nil && DateOf(v.EffectiveFrom).After(DateOf(*to)) {
		return false
	}
	if v.EffectiveTo != nil && DateOf(*v.EffectiveTo).Before(DateOf(from)) {
		return false
	}
	return true
}

// Overlaps compares the effective ranges of two versions.
func (v *Version) Overlaps(other *Version) bool {
	return v.OverlapsRange(other.EffectiveFrom, other.EffectiveTo)
}

func (v *Version) Validate() error {
	if v.ServiceID <= 0 {
		return invalid("service_id", "must be positive, got %d", v.ServiceID)
	}
	if !v.State.Valid() {
		return invalid("state", "unknown state %q", v.State)
	}
	if v.EffectiveFrom.IsZero() {
		return invalid("effective_from", "is required")
	}
	if v.EffectiveTo != nil && DateOf(*v.EffectiveTo).Before(DateOf(v.EffectiveFrom)) {
		return invalid("effective_to", "must not be before effective_from")
	}
	return nil
}
