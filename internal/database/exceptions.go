package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"prenota/internal/models"
)

const exceptionColumns = `id, version_id, exception_date, exception_type, is_fully_closed,
	start_time, end_time, override_opening_time, override_closing_time, note, created_at, updated_at`

func scanException(row rowScanner) (*models.Exception, error) {
	var (
		e                               models.Exception
		date, typ                       string
		closed                          bool
		start, end, overOpen, overClose sql.NullString
		note                            sql.NullString
	)
	if err := row.Scan(&e.ID, &e.VersionID, &date, &typ, &closed,
		&start, &end, &overOpen, &overClose, &note, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if e.Date, err = models.ParseDate(date); err != nil {
		return nil, fmt.Errorf("exception %d date: %w", e.ID, err)
	}
	e.Type = models.ExceptionType(typ)
	if note.Valid {
		e.Note = note.String
	}

	cols := models.ExceptionColumns{IsFullyClosed: closed}
	for _, f := range []struct {
		dst **models.Clock
		src sql.NullString
	}{{&cols.StartTime, start}, {&cols.EndTime, end}, {&cols.OverrideOpeningTime, overOpen}, {&cols.OverrideClosingTime, overClose}} {
		c, err := scanClock(f.src)
		if err != nil {
			return nil, fmt.Errorf("exception %d: %w", e.ID, err)
		}
		*f.dst = c
	}

	if e.Mode, e.Window, err = cols.Mode(); err != nil {
		return nil, fmt.Errorf("exception %d: %w", e.ID, err)
	}
	return &e, nil
}

// CreateException inserts e and fills its ID and timestamps.
func (db *DB) CreateException(ctx context.Context, e *models.Exception) error {
	if err := e.Validate(); err != nil {
		return err
	}

	cols := e.Columns()
	now := time.Now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO availability_exceptions (
			version_id, exception_date, exception_type, is_fully_closed,
			start_time, end_time, override_opening_time, override_closing_time, note, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.VersionID, models.FormatDate(e.Date), string(e.Type), cols.IsFullyClosed,
		nullClock(cols.StartTime), nullClock(cols.EndTime),
		nullClock(cols.OverrideOpeningTime), nullClock(cols.OverrideClosingTime),
		e.Note, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert exception: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	e.CreatedAt, e.UpdatedAt = now, now
	return nil
}

// GetException returns one exception by id.
func (db *DB) GetException(ctx context.Context, id int64) (*models.Exception, error) {
	row := db.QueryRowContext(ctx, `SELECT `+exceptionColumns+` FROM availability_exceptions WHERE id = ?`, id)
	e, err := scanException(row)
	if err != nil {
		return nil, notFound(err, "exception", id)
	}
	return e, nil
}

// DeleteException removes one exception.
func (db *DB) DeleteException(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM availability_exceptions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(sql.ErrNoRows, "exception", id)
	}
	return nil
}

// LoadExceptions returns the version's exceptions for exactly date.
func (db *DB) LoadExceptions(ctx context.Context, versionID int64, date time.Time) ([]models.Exception, error) {
	return db.queryExceptions(ctx, `SELECT `+exceptionColumns+` FROM availability_exceptions
		WHERE version_id = ? AND exception_date = ? ORDER BY id`, versionID, models.FormatDate(date))
}

// ListExceptions returns the version's exceptions within [from, to], ordered by date.
func (db *DB) ListExceptions(ctx context.Context, versionID int64, from, to time.Time) ([]models.Exception, error) {
	return db.queryExceptions(ctx, `SELECT `+exceptionColumns+` FROM availability_exceptions
		WHERE version_id = ? AND exception_date >= ? AND exception_date <= ?
		ORDER BY exception_date, id`, versionID, models.FormatDate(from), models.FormatDate(to))
}

func (db *DB) queryExceptions(ctx context.Context, query string, args ...interface{}) ([]models.Exception, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Exception
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
