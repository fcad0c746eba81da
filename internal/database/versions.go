package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"prenota/internal/models"
)

const versionColumns = `id, service_id, state, effective_from, effective_to, notes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVersion(row rowScanner) (*models.Version, error) {
	var (
		v     models.Version
		state string
		from  string
		to    sql.NullString
		notes sql.NullString
	)
	if err := row.Scan(&v.ID, &v.ServiceID, &state, &from, &to, &notes, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	v.State = models.VersionState(state)

	var err error
	if v.EffectiveFrom, err = models.ParseDate(from); err != nil {
		return nil, fmt.Errorf("version %d effective_from: %w", v.ID, err)
	}
	if to.Valid {
		t, err := models.ParseDate(to.String)
		if err != nil {
			return nil, fmt.Errorf("version %d effective_to: %w", v.ID, err)
		}
		v.EffectiveTo = &t
	}
	if notes.Valid {
		v.Notes = notes.String
	}
	return &v, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// CreateVersion inserts v and fills its ID and timestamps.
func (db *DB) CreateVersion(ctx context.Context, v *models.Version) error {
	return insertVersion(ctx, db, v)
}

// CreateVersionWithWeek inserts v, its weekly rows and an optional slot policy in one
// transaction, so a version is never visible without its week.
func (db *DB) CreateVersionWithWeek(ctx context.Context, v *models.Version, days []models.WeeklyDay, policy *models.SlotPolicy) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertVersion(ctx, tx, v); err != nil {
		return err
	}
	for i := range days {
		days[i].VersionID = v.ID
		if err := upsertWeeklyDay(ctx, tx, &days[i]); err != nil {
			return err
		}
	}
	if policy != nil {
		policy.VersionID = v.ID
		if err := upsertSlotPolicy(ctx, tx, policy); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit version %d: %w", v.ID, err)
	}
	return nil
}

func insertVersion(ctx context.Context, q execer, v *models.Version) error {
	if v.State == "" {
		v.State = models.VersionActive
	}
	if err := v.Validate(); err != nil {
		return err
	}

	now := time.Now()
	res, err := q.ExecContext(ctx, `
		INSERT INTO schedule_versions (service_id, state, effective_from, effective_to, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ServiceID, string(v.State), models.FormatDate(v.EffectiveFrom), nullDate(v.EffectiveTo), v.Notes, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	if v.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	v.CreatedAt, v.UpdatedAt = now, now
	return nil
}

// UpdateVersion rewrites the range, state and notes of an existing version.
func (db *DB) UpdateVersion(ctx context.Context, v *models.Version) error {
	if err := v.Validate(); err != nil {
		return err
	}

	now := time.Now()
	res, err := db.ExecContext(ctx, `
		UPDATE schedule_versions
		SET state = ?, effective_from = ?, effective_to = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		string(v.State), models.FormatDate(v.EffectiveFrom), nullDate(v.EffectiveTo), v.Notes, now, v.ID,
	)
	if err != nil {
		return fmt.Errorf("update version %d: %w", v.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(sql.ErrNoRows, "version", v.ID)
	}
	v.UpdatedAt = now
	return nil
}

// GetVersion returns one version by id.
func (db *DB) GetVersion(ctx context.Context, id int64) (*models.Version, error) {
	row := db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM schedule_versions WHERE id = ?`, id)
	v, err := scanVersion(row)
	if err != nil {
		return nil, notFound(err, "version", id)
	}
	return v, nil
}

// LoadVersions returns every version of a service, any state, oldest first.
func (db *DB) LoadVersions(ctx context.Context, serviceID int64) ([]models.Version, error) {
	return db.queryVersions(ctx, `SELECT `+versionColumns+` FROM schedule_versions
		WHERE service_id = ? ORDER BY effective_from, id`, serviceID)
}

// ListActiveVersions returns the service's ACTIVE versions, oldest first.
func (db *DB) ListActiveVersions(ctx context.Context, serviceID int64) ([]models.Version, error) {
	return db.queryVersions(ctx, `SELECT `+versionColumns+` FROM schedule_versions
		WHERE service_id = ? AND state = ? ORDER BY effective_from, id`, serviceID, string(models.VersionActive))
}

// ListVersionsOverlapping returns ACTIVE versions of the service whose range
// intersects [from, to]. A nil to means open-ended.
func (db *DB) ListVersionsOverlapping(ctx context.Context, serviceID int64, from time.Time, to *time.Time) ([]models.Version, error) {
	active, err := db.ListActiveVersions(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	var out []models.Version
	for i := range active {
		if active[i].OverlapsRange(from, to) {
			out = append(out, active[i])
		}
	}
	return out, nil
}

// MostRecentVersion returns the ACTIVE version with the latest effective_from.
func (db *DB) MostRecentVersion(ctx context.Context, serviceID int64) (*models.Version, error) {
	row := db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM schedule_versions
		WHERE service_id = ? AND state = ?
		ORDER BY effective_from DESC, id DESC LIMIT 1`, serviceID, string(models.VersionActive))
	v, err := scanVersion(row)
	if err != nil {
		return nil, notFound(err, "active version for service", serviceID)
	}
	return v, nil
}

func (db *DB) queryVersions(ctx context.Context, query string, args ...interface{}) ([]models.Version, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []models.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}
