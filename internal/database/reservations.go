package database

import (
	"context"
	"fmt"
	"time"

	"prenota/internal/models"
)

// Reservation statuses. Only held and confirmed reservations consume capacity.
const (
	StatusHeld      = "held"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusRejected  = "rejected"
)

// RecordReservation stores a reservation row. Reservation management lives outside
// this service; the table is written by the booking flow and by tests.
func (db *DB) RecordReservation(ctx context.Context, serviceID int64, date time.Time, start, end models.Clock, status string) (int64, error) {
	now := time.Now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO reservations (service_id, reservation_date, start_time, end_time, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		serviceID, models.FormatDate(date), start.String(), end.String(), status, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert reservation: %w", err)
	}
	return res.LastInsertId()
}

// CountReservations counts held and confirmed reservations of the service overlapping
// [start, end) on date.
func (db *DB) CountReservations(ctx context.Context, serviceID int64, date time.Time, start, end models.Clock) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reservations
		WHERE service_id = ? AND reservation_date = ?
		AND start_time < ? AND end_time > ?
		AND status IN (?, ?)`,
		serviceID, models.FormatDate(date), end.String(), start.String(), StatusHeld, StatusConfirmed,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountReservationsForDate counts held and confirmed reservations of the service on date.
func (db *DB) CountReservationsForDate(ctx context.Context, serviceID int64, date time.Time) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reservations
		WHERE service_id = ? AND reservation_date = ? AND status IN (?, ?)`,
		serviceID, models.FormatDate(date), StatusHeld, StatusConfirmed,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
