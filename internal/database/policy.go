package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"prenota/internal/models"
)

// UpsertSlotPolicy stores the single policy of a version.
func (db *DB) UpsertSlotPolicy(ctx context.Context, p *models.SlotPolicy) error {
	return upsertSlotPolicy(ctx, db, p)
}

func upsertSlotPolicy(ctx context.Context, q execer, p *models.SlotPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}

	now := time.Now()
	_, err := q.ExecContext(ctx, `
		INSERT INTO slot_policies (
			version_id, start_time, end_time, slot_duration_minutes, buffer_minutes,
			max_concurrent_reservations, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(version_id) DO UPDATE SET
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			slot_duration_minutes = excluded.slot_duration_minutes,
			buffer_minutes = excluded.buffer_minutes,
			max_concurrent_reservations = excluded.max_concurrent_reservations,
			updated_at = excluded.updated_at`,
		p.VersionID, p.StartTime.String(), p.EndTime.String(), p.SlotDurationMinutes, p.BufferMinutes,
		p.MaxConcurrentReservations, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert slot policy for version %d: %w", p.VersionID, err)
	}

	stored, err := loadSlotPolicy(ctx, q, p.VersionID)
	if err != nil {
		return err
	}
	*p = *stored
	return nil
}

// LoadSlotPolicy returns the version's policy or schedule.ErrNotFound.
func (db *DB) LoadSlotPolicy(ctx context.Context, versionID int64) (*models.SlotPolicy, error) {
	return loadSlotPolicy(ctx, db, versionID)
}

func loadSlotPolicy(ctx context.Context, q execer, versionID int64) (*models.SlotPolicy, error) {
	var (
		p          models.SlotPolicy
		start, end string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, version_id, start_time, end_time, slot_duration_minutes, buffer_minutes,
		       max_concurrent_reservations, created_at, updated_at
		FROM slot_policies WHERE version_id = ?`, versionID,
	).Scan(&p.ID, &p.VersionID, &start, &end, &p.SlotDurationMinutes, &p.BufferMinutes,
		&p.MaxConcurrentReservations, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "slot policy for version", versionID)
	}

	if p.StartTime, err = models.ParseClock(start); err != nil {
		return nil, fmt.Errorf("slot policy %d start_time: %w", p.ID, err)
	}
	if p.EndTime, err = models.ParseClock(end); err != nil {
		return nil, fmt.Errorf("slot policy %d end_time: %w", p.ID, err)
	}
	return &p, nil
}

// DeleteSlotPolicy removes the version's policy. Deleting a missing policy is
// schedule.ErrNotFound.
func (db *DB) DeleteSlotPolicy(ctx context.Context, versionID int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM slot_policies WHERE version_id = ?`, versionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(sql.ErrNoRows, "slot policy for version", versionID)
	}
	return nil
}
