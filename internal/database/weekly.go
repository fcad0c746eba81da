package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"prenota/internal/models"
)

// UpsertWeeklyDay stores the row for (version, day), replacing any existing one.
func (db *DB) UpsertWeeklyDay(ctx context.Context, d *models.WeeklyDay) error {
	return upsertWeeklyDay(ctx, db, d)
}

func upsertWeeklyDay(ctx context.Context, q execer, d *models.WeeklyDay) error {
	if err := d.Validate(); err != nil {
		return err
	}

	now := time.Now()
	_, err := q.ExecContext(ctx, `
		INSERT INTO weekly_days (
			version_id, day_of_week, is_closed, opening_time, closing_time,
			break_start, break_end, max_reservations, slot_duration, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(version_id, day_of_week) DO UPDATE SET
			is_closed = excluded.is_closed,
			opening_time = excluded.opening_time,
			closing_time = excluded.closing_time,
			break_start = excluded.break_start,
			break_end = excluded.break_end,
			max_reservations = excluded.max_reservations,
			slot_duration = excluded.slot_duration,
			updated_at = excluded.updated_at`,
		d.VersionID, int(d.DayOfWeek), d.IsClosed, nullClock(d.OpeningTime), nullClock(d.ClosingTime),
		nullClock(d.BreakStart), nullClock(d.BreakEnd), nullInt(d.MaxReservations), d.SlotDuration, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert weekly day %d/%s: %w", d.VersionID, d.DayOfWeek, err)
	}

	err = q.QueryRowContext(ctx,
		`SELECT id, created_at FROM weekly_days WHERE version_id = ? AND day_of_week = ?`,
		d.VersionID, int(d.DayOfWeek),
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return err
	}
	d.UpdatedAt = now
	return nil
}

// LoadWeeklyDays returns the version's rows ordered by day of week.
func (db *DB) LoadWeeklyDays(ctx context.Context, versionID int64) ([]models.WeeklyDay, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, version_id, day_of_week, is_closed, opening_time, closing_time,
		       break_start, break_end, max_reservations, slot_duration, created_at, updated_at
		FROM weekly_days
		WHERE version_id = ?
		ORDER BY day_of_week`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []models.WeeklyDay
	for rows.Next() {
		var (
			d                        models.WeeklyDay
			dow                      int
			opening, closing, bs, be sql.NullString
			maxReservations          sql.NullInt64
		)
		if err := rows.Scan(&d.ID, &d.VersionID, &dow, &d.IsClosed, &opening, &closing,
			&bs, &be, &maxReservations, &d.SlotDuration, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.DayOfWeek = time.Weekday(dow)

		for _, f := range []struct {
			dst **models.Clock
			src sql.NullString
		}{{&d.OpeningTime, opening}, {&d.ClosingTime, closing}, {&d.BreakStart, bs}, {&d.BreakEnd, be}} {
			c, err := scanClock(f.src)
			if err != nil {
				return nil, fmt.Errorf("weekly day %d: %w", d.ID, err)
			}
			*f.dst = c
		}
		if maxReservations.Valid {
			n := int(maxReservations.Int64)
			d.MaxReservations = &n
		}
		days = append(days, d)
	}
	return days, rows.Err()
}
