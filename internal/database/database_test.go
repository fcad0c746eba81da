package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prenota/internal/config"
	"prenota/internal/models"
	"prenota/internal/schedule"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func clockPtr(s string) *models.Clock {
	c := models.MustClock(s)
	return &c
}

func seedService(t *testing.T, db *DB, id, restaurantID int64) {
	t.Helper()
	require.NoError(t, db.UpsertService(context.Background(), &models.Service{
		ID: id, RestaurantID: restaurantID, Name: "svc", IsActive: true,
	}))
}

var june = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func TestVersions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedService(t, db, 1, 10)

	augEnd := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	summer := &models.Version{ServiceID: 1, EffectiveFrom: june, EffectiveTo: &augEnd, Notes: "summer"}
	require.NoError(t, db.CreateVersion(ctx, summer))
	assert.NotZero(t, summer.ID)
	assert.Equal(t, models.VersionActive, summer.State)

	autumn := &models.Version{ServiceID: 1, EffectiveFrom: augEnd.AddDate(0, 0, 1)}
	require.NoError(t, db.CreateVersion(ctx, autumn))

	got, err := db.GetVersion(ctx, summer.ID)
	require.NoError(t, err)
	assert.Equal(t, "summer", got.Notes)
	require.NotNil(t, got.EffectiveTo)
	assert.True(t, models.SameDate(augEnd, *got.EffectiveTo))

	recent, err := db.MostRecentVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, autumn.ID, recent.ID)

	overlapping, err := db.ListVersionsOverlapping(ctx, 1, june.AddDate(0, 1, 0), nil)
	require.NoError(t, err)
	assert.Len(t, overlapping, 2)

	got.State = models.VersionArchived
	require.NoError(t, db.UpdateVersion(ctx, got))

	active, err := db.ListActiveVersions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, autumn.ID, active[0].ID)

	all, err := db.LoadVersions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = db.GetVersion(ctx, 999)
	assert.ErrorIs(t, err, schedule.ErrNotFound)

	_, err = db.MostRecentVersion(ctx, 2)
	assert.ErrorIs(t, err, schedule.ErrNotFound)

	before := june.AddDate(0, 0, -1)
	bad := &models.Version{ServiceID: 1, EffectiveFrom: june, EffectiveTo: &before}
	assert.True(t, models.IsValidation(db.CreateVersion(ctx, bad)))
}

func TestWeeklyDays(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedService(t, db, 1, 10)
	v := &models.Version{ServiceID: 1, EffectiveFrom: june}
	require.NoError(t, db.CreateVersion(ctx, v))

	monday := &models.WeeklyDay{
		VersionID: v.ID, DayOfWeek: time.Monday,
		OpeningTime: clockPtr("09:00"), ClosingTime: clockPtr("23:00"),
		BreakStart: clockPtr("15:00"), BreakEnd: clockPtr("17:00"),
		MaxReservations: func() *int { n := 50; return &n }(),
		SlotDuration:    30,
	}
	require.NoError(t, db.UpsertWeeklyDay(ctx, monday))
	firstID := monday.ID
	require.NoError(t, db.UpsertWeeklyDay(ctx, &models.WeeklyDay{VersionID: v.ID, DayOfWeek: time.Sunday, IsClosed: true}))

	// second upsert of Monday replaces the row in place
	monday.BreakStart, monday.BreakEnd = nil, nil
	require.NoError(t, db.UpsertWeeklyDay(ctx, monday))
	assert.Equal(t, firstID, monday.ID)

	days, err := db.LoadWeeklyDays(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, time.Sunday, days[0].DayOfWeek)
	assert.True(t, days[0].IsClosed)
	assert.Nil(t, days[0].OpeningTime)

	assert.Equal(t, "09:00", days[1].OpeningTime.String())
	assert.Nil(t, days[1].BreakStart)
	require.NotNil(t, days[1].MaxReservations)
	assert.Equal(t, 50, *days[1].MaxReservations)

	invalid := &models.WeeklyDay{VersionID: v.ID, DayOfWeek: time.Tuesday, OpeningTime: clockPtr("18:00"), ClosingTime: clockPtr("09:00")}
	assert.True(t, models.IsValidation(db.UpsertWeeklyDay(ctx, invalid)))
}

func TestCreateVersionWithWeek(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedService(t, db, 1, 10)

	week := func() []models.WeeklyDay {
		var days []models.WeeklyDay
		for d := time.Sunday; d <= time.Saturday; d++ {
			days = append(days, models.WeeklyDay{DayOfWeek: d, OpeningTime: clockPtr("10:00"), ClosingTime: clockPtr("14:00")})
		}
		return days
	}

	bad := &models.SlotPolicy{StartTime: models.MustClock("10:00"), EndTime: models.MustClock("14:00"), SlotDurationMinutes: 30}
	err := db.CreateVersionWithWeek(ctx, &models.Version{ServiceID: 1, EffectiveFrom: june}, week(), bad)
	require.Error(t, err)

	versions, err := db.LoadVersions(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, versions, "failed policy rolls the version back")

	v := &models.Version{ServiceID: 1, EffectiveFrom: june}
	policy := &models.SlotPolicy{
		StartTime: models.MustClock("10:00"), EndTime: models.MustClock("14:00"),
		SlotDurationMinutes: 30, MaxConcurrentReservations: 3,
	}
	require.NoError(t, db.CreateVersionWithWeek(ctx, v, week(), policy))

	days, err := db.LoadWeeklyDays(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, days, 7)
	assert.Equal(t, v.ID, days[0].VersionID)
	assert.NotZero(t, days[0].ID)

	got, err := db.LoadSlotPolicy(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.MaxConcurrentReservations)
	assert.Equal(t, policy.ID, got.ID)
}

func TestSlotPolicy(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedService(t, db, 1, 10)
	v := &models.Version{ServiceID: 1, EffectiveFrom: june}
	require.NoError(t, db.CreateVersion(ctx, v))

	_, err := db.LoadSlotPolicy(ctx, v.ID)
	assert.ErrorIs(t, err, schedule.ErrNotFound)

	p := &models.SlotPolicy{
		VersionID: v.ID, StartTime: models.MustClock("09:00"), EndTime: models.MustClock("24:00"),
		SlotDurationMinutes: 90, BufferMinutes: 15, MaxConcurrentReservations: 6,
	}
	require.NoError(t, db.UpsertSlotPolicy(ctx, p))
	assert.NotZero(t, p.ID)

	p.MaxConcurrentReservations = 8
	require.NoError(t, db.UpsertSlotPolicy(ctx, p))

	got, err := db.LoadSlotPolicy(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.MaxConcurrentReservations)
	assert.Equal(t, models.Clock(models.MinutesPerDay), got.EndTime)
	assert.Equal(t, 105, got.Interval())

	require.NoError(t, db.DeleteSlotPolicy(ctx, v.ID))
	assert.ErrorIs(t, db.DeleteSlotPolicy(ctx, v.ID), schedule.ErrNotFound)
}

func TestExceptions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedService(t, db, 1, 10)
	v := &models.Version{ServiceID: 1, EffectiveFrom: june}
	require.NoError(t, db.CreateVersion(ctx, v))

	day := june.AddDate(0, 0, 3)
	in := []models.Exception{
		models.NewFullClosure(day.AddDate(0, 0, 1), models.ExceptionClosure, "inventory"),
		models.NewPartialClosure(day, models.ExceptionMaintenance, models.MustClock("14:00"), models.MustClock("15:00"), ""),
		models.NewHoursOverride(day, models.ExceptionSpecialEvent, models.MustClock("18:00"), models.MustClock("24:00"), "late opening"),
	}
	for i := range in {
		in[i].VersionID = v.ID
		require.NoError(t, db.CreateException(ctx, &in[i]))
	}

	onDay, err := db.LoadExceptions(ctx, v.ID, day)
	require.NoError(t, err)
	require.Len(t, onDay, 2)
	assert.Equal(t, models.ModePartialClosure, onDay[0].Mode)
	assert.Equal(t, models.TimeRange{Start: models.MustClock("14:00"), End: models.MustClock("15:00")}, onDay[0].Window)
	assert.Equal(t, models.ModeHoursOverride, onDay[1].Mode)
	assert.Equal(t, "late opening", onDay[1].Note)

	ranged, err := db.ListExceptions(ctx, v.ID, day, day.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Len(t, ranged, 3)

	got, err := db.GetException(ctx, in[0].ID)
	require.NoError(t, err)
	assert.True(t, got.IsFullClosure())
	assert.True(t, models.SameDate(day.AddDate(0, 0, 1), got.Date))

	require.NoError(t, db.DeleteException(ctx, in[0].ID))
	assert.ErrorIs(t, db.DeleteException(ctx, in[0].ID), schedule.ErrNotFound)
	_, err = db.GetException(ctx, in[0].ID)
	assert.ErrorIs(t, err, schedule.ErrNotFound)
}

func TestExceptions_RejectsMixedRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedService(t, db, 1, 10)
	v := &models.Version{ServiceID: 1, EffectiveFrom: june}
	require.NoError(t, db.CreateVersion(ctx, v))

	// written by hand, bypassing CreateException
	_, err := db.ExecContext(ctx, `
		INSERT INTO availability_exceptions (version_id, exception_date, exception_type, is_fully_closed, start_time, end_time)
		VALUES (?, ?, 'CLOSURE', 1, '10:00', '11:00')`, v.ID, models.FormatDate(june))
	require.NoError(t, err)

	_, err = db.LoadExceptions(ctx, v.ID, june)
	assert.Error(t, err)
}

func TestReservationCounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := models.MustClock

	for _, r := range []struct {
		start, end string
		status     string
	}{
		{"12:00", "12:30", StatusConfirmed},
		{"12:00", "12:30", StatusHeld},
		{"12:15", "13:15", StatusConfirmed},
		{"12:00", "12:30", StatusCancelled},
		{"13:00", "13:30", StatusRejected},
		{"18:00", "18:30", StatusConfirmed},
	} {
		_, err := db.RecordReservation(ctx, 1, june, c(r.start), c(r.end), r.status)
		require.NoError(t, err)
	}
	_, err := db.RecordReservation(ctx, 2, june, c("12:00"), c("12:30"), StatusConfirmed)
	require.NoError(t, err)
	_, err = db.RecordReservation(ctx, 1, june.AddDate(0, 0, 1), c("12:00"), c("12:30"), StatusConfirmed)
	require.NoError(t, err)

	n, err := db.CountReservations(ctx, 1, june, c("12:00"), c("12:30"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = db.CountReservations(ctx, 1, june, c("12:30"), c("13:00"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = db.CountReservations(ctx, 1, june, c("13:15"), c("13:45"))
	require.NoError(t, err)
	assert.Equal(t, 0, n, "touching reservations do not count")

	n, err = db.CountReservationsForDate(ctx, 1, june)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestAudit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	entry := &models.AuditEntry{
		EntityType: models.AuditException,
		EntityID:   5,
		ServiceID:  1,
		Action:     models.ActionCreated,
		Payload:    []byte(`{"mode":"FULL_CLOSURE"}`),
	}
	require.NoError(t, db.AppendAudit(ctx, entry))
	assert.NotEmpty(t, entry.EventID)
	require.NoError(t, db.AppendAudit(ctx, &models.AuditEntry{EntityType: models.AuditVersion, EntityID: 1, ServiceID: 1, Action: models.ActionArchived}))

	entries, err := db.ListAudit(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActionArchived, entries[0].Action)
	assert.JSONEq(t, `{"mode":"FULL_CLOSURE"}`, string(entries[1].Payload))

	names, err := db.GetTableNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "schedule_audit_log")

	rows, cols, err := db.GetTableData(ctx, "schedule_audit_log")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Contains(t, cols, "event_id")

	_, _, err = db.GetTableData(ctx, "reservations; DROP TABLE services")
	assert.Error(t, err)
}

func TestSyncSchedulesFromConfig(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cfg, err := config.ParseSchedulesConfig([]byte(`
defaults:
  hours: {open: "09:00", close: "23:00"}
  policy: {start_time: "09:00", end_time: "23:00", slot_duration_minutes: 30, max_concurrent_reservations: 10}
  days_off: [7]
services:
  - {id: 1, restaurant_id: 100, name: Dinner, is_active: true, effective_from: "2026-01-01"}
  - {id: 2, restaurant_id: 100, name: Terrace, is_active: true, effective_from: "2026-05-01", effective_to: "2026-09-30"}
holidays:
  - {date: "2026-12-25", name: Christmas}
`))
	require.NoError(t, err)

	report, err := db.SyncSchedulesFromConfig(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, report.Services)
	assert.Equal(t, 2, report.CreatedVersions)
	assert.Equal(t, 1, report.Holidays, "terrace version does not cover December")

	versions, err := db.LoadVersions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	days, err := db.LoadWeeklyDays(ctx, versions[0].ID)
	require.NoError(t, err)
	require.Len(t, days, 7)
	assert.True(t, days[0].IsClosed)

	policy, err := db.LoadSlotPolicy(ctx, versions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 10, policy.MaxConcurrentReservations)

	xmas, err := db.LoadExceptions(ctx, versions[0].ID, time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, xmas, 1)
	assert.Equal(t, "Christmas", xmas[0].Note)

	// A second sync is idempotent.
	report, err = db.SyncSchedulesFromConfig(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, report.CreatedVersions)
	assert.Equal(t, 0, report.Holidays)

	// Dropping a service from the file deactivates it.
	cfg.Services = cfg.Services[:1]
	_, err = db.SyncSchedulesFromConfig(ctx, cfg)
	require.NoError(t, err)

	svc, err := db.GetService(ctx, 2)
	require.NoError(t, err)
	assert.False(t, svc.IsActive)

	services, err := db.ListRestaurantServices(ctx, 100)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, int64(1), services[0].ID)
}

func TestBackupService(t *testing.T) {
	db := newTestDB(t)
	seedService(t, db, 1, 10)

	logger := zerolog.Nop()
	dir := filepath.Join(t.TempDir(), "backups")
	svc := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: dir, RetentionDays: 1}, &logger)

	path, err := svc.PerformBackup(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)

	old := filepath.Join(dir, "backup_old.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o600))
	past := time.Now().AddDate(0, 0, -3)
	require.NoError(t, os.Chtimes(old, past, past))

	svc.CleanupOldBackups()
	assert.NoFileExists(t, old)
	assert.FileExists(t, path)

	restored, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer restored.Close()
	got, err := restored.GetService(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.RestaurantID)
}
