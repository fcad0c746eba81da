package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"

	"prenota/internal/models"
	"prenota/internal/schedule"
)

// DB is the sqlite-backed configuration and reservation store.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// NewDB opens the database at path and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, path: path, logger: logger}
	if err := instance.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY,
			restaurant_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS schedule_versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			service_id INTEGER NOT NULL,
			state TEXT NOT NULL DEFAULT 'ACTIVE',
			effective_from TEXT NOT NULL,
			effective_to TEXT,
			notes TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (service_id) REFERENCES services(id)
		)`,

		`CREATE TABLE IF NOT EXISTS weekly_days (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version_id INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL,
			is_closed BOOLEAN NOT NULL DEFAULT 0,
			opening_time TEXT,
			closing_time TEXT,
			break_start TEXT,
			break_end TEXT,
			max_reservations INTEGER,
			slot_duration INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (version_id, day_of_week),
			FOREIGN KEY (version_id) REFERENCES schedule_versions(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS slot_policies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version_id INTEGER NOT NULL UNIQUE,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			slot_duration_minutes INTEGER NOT NULL,
			buffer_minutes INTEGER NOT NULL DEFAULT 0,
			max_concurrent_reservations INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (version_id) REFERENCES schedule_versions(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS availability_exceptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version_id INTEGER NOT NULL,
			exception_date TEXT NOT NULL,
			exception_type TEXT NOT NULL,
			is_fully_closed BOOLEAN NOT NULL DEFAULT 0,
			start_time TEXT,
			end_time TEXT,
			override_opening_time TEXT,
			override_closing_time TEXT,
			note TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (version_id) REFERENCES schedule_versions(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			service_id INTEGER NOT NULL,
			reservation_date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			party_size INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'held',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS schedule_audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			entity_type TEXT NOT NULL,
			entity_id INTEGER NOT NULL,
			service_id INTEGER NOT NULL,
			action TEXT NOT NULL,
			payload TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_services_restaurant ON services(restaurant_id, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_versions_service ON schedule_versions(service_id, state)`,
		`CREATE INDEX IF NOT EXISTS idx_exceptions_version_date ON availability_exceptions(version_id, exception_date)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_slot ON reservations(service_id, reservation_date, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_service ON schedule_audit_log(service_id, created_at)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// notFound maps sql.ErrNoRows to schedule.ErrNotFound.
func notFound(err error, what string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, schedule.ErrNotFound)
	}
	return err
}

func nullClock(c *models.Clock) interface{} {
	if c == nil {
		return nil
	}
	return c.String()
}

func scanClock(ns sql.NullString) (*models.Clock, error) {
	if !ns.Valid {
		return nil, nil
	}
	return models.ClockPtr(ns.String)
}

func nullDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return models.FormatDate(*t)
}

func nullInt(n *int) interface{} {
	if n == nil {
		return nil
	}
	return *n
}
