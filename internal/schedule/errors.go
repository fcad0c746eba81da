package schedule

import "errors"

var (
	// ErrNotFound is returned by stores when the requested configuration row does not exist.
	ErrNotFound = errors.New("not found")

	ErrMissingWeeklyDay        = errors.New("weekly schedule has no row for day")
	ErrDuplicateWeeklyDay      = errors.New("weekly schedule has more than one row for day")
	ErrContradictoryExceptions = errors.New("contradictory exceptions on date")
	ErrVersionOverlap          = errors.New("version overlaps another active version")
	ErrInvalidTransition       = errors.New("invalid version state transition")

	// ErrInvalidConfiguration wraps a stored row that fails its own validation.
	ErrInvalidConfiguration = errors.New("invalid schedule configuration")
)
