package schedule

import (
	"context"
	"time"

	"prenota/internal/models"
)

// ConfigStore loads schedule configuration. Lookups of a single row return ErrNotFound
// when nothing matches; list lookups return an empty slice.
type ConfigStore interface {
	LoadVersions(ctx context.Context, serviceID int64) ([]models.Version, error)
	LoadWeeklyDays(ctx context.Context, versionID int64) ([]models.WeeklyDay, error)
	LoadExceptions(ctx context.Context, versionID int64, date time.Time) ([]models.Exception, error)
	LoadSlotPolicy(ctx context.Context, versionID int64) (*models.SlotPolicy, error)
}

// ReservationStore counts reservations that hold capacity (confirmed or held).
type ReservationStore interface {
	CountReservations(ctx context.Context, serviceID int64, date time.Time, start, end models.Clock) (int, error)
	CountReservationsForDate(ctx context.Context, serviceID int64, date time.Time) (int, error)
}

// Snapshot is everything Resolve needs for one service and date. WeeklyDays, Policy and
// Exceptions belong to the version that SelectVersion picks from Versions.
type Snapshot struct {
	ServiceID  int64
	Date       time.Time
	Versions   []models.Version
	WeeklyDays []models.WeeklyDay
	Policy     *models.SlotPolicy
	Exceptions []models.Exception

	// Booked holds the reservation count per slot start.
	Booked   map[models.Clock]int
	DayTotal int
}
