package audit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"prenota/internal/models"
	"prenota/internal/schedule"
)

type fakeTables struct {
	data map[string][]map[string]interface{}
	cols map[string][]string
	fail map[string]bool
}

func (f *fakeTables) GetTableNames(context.Context) ([]string, error) {
	return []string{"schedule_versions", "broken", "weekly_days"}, nil
}

func (f *fakeTables) GetTableData(_ context.Context, name string) ([]map[string]interface{}, []string, error) {
	if f.fail[name] {
		return nil, nil, errors.New("no such table")
	}
	return f.data[name], f.cols[name], nil
}

type mockAvailability struct {
	mock.Mock
}

func (m *mockAvailability) GetAvailabilityRange(ctx context.Context, serviceID int64, from, to, now time.Time) ([]schedule.Result, error) {
	args := m.Called(ctx, serviceID, from, to, now)
	return args.Get(0).([]schedule.Result), args.Error(1)
}

type staticServices []models.Service

func (s staticServices) ListServices(context.Context) ([]models.Service, error) { return s, nil }

type memSink struct {
	name string
	data []byte
}

func (m *memSink) Deliver(_ context.Context, filename string, data io.Reader) error {
	b, err := io.ReadAll(data)
	m.name, m.data = filename, b
	return err
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}

func TestExportNow(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	tables := &fakeTables{
		data: map[string][]map[string]interface{}{
			"schedule_versions": {{"id": int64(1), "state": "ACTIVE"}, {"id": int64(2), "state": "ARCHIVED"}},
		},
		cols: map[string][]string{
			"schedule_versions": {"id", "state"},
			"weekly_days":       {"id", "day_of_week"},
		},
		fail: map[string]bool{"broken": true},
	}

	slot := models.TimeSlot{Date: now, Start: models.MustClock("12:00"), End: models.MustClock("13:00"), Capacity: 4, CapacityRemaining: 3}
	avail := new(mockAvailability)
	avail.On("GetAvailabilityRange", mock.Anything, int64(1), models.DateOf(now), models.DateOf(now).AddDate(0, 0, 1), now).
		Return([]schedule.Result{
			{ServiceID: 1, Date: "2026-06-01", Status: schedule.StatusOpen, VersionID: 5, Slots: []models.TimeSlot{slot}},
			{ServiceID: 1, Date: "2026-06-02", Status: schedule.StatusClosed, Reason: schedule.ReasonWeeklyClosed, VersionID: 5},
		}, nil)

	services := staticServices{
		{ID: 1, Name: "lunch", IsActive: true},
		{ID: 2, Name: "retired", IsActive: false},
	}
	sink := &memSink{}
	svc := NewService(&Config{ReportDays: 2}, tables, services, avail, NewExcelizeWriter, sink, nopLogger{})
	svc.now = func() time.Time { return now }

	name, err := svc.ExportNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "schedules_2026-06-01_0930.xlsx", name)
	assert.Equal(t, name, sink.name)
	avail.AssertExpectations(t)

	f, err := excelize.OpenReader(bytes.NewReader(sink.data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"schedule_versions", "weekly_days", availabilitySheet}, f.GetSheetList())

	rows, err := f.GetRows("schedule_versions")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "state"}, rows[0])
	assert.Equal(t, []string{"2", "ARCHIVED"}, rows[2])

	rows, err = f.GetRows(availabilitySheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, availabilityColumns, rows[0])
	assert.Equal(t, []string{"1", "lunch", "2026-06-01", "OPEN", "", "5", "1", "1", "12:00", "12:00", "3"}, rows[1])
	assert.Equal(t, "WEEKLY_CLOSED", rows[2][4])
}

func TestExportNow_NotConfigured(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, NewExcelizeWriter, &memSink{}, nil)
	_, err := svc.ExportNow(context.Background())
	assert.Error(t, err)
}

func TestDirSink(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "schedules_2020-01-01_0000.xlsx")
	keep := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0o644))
	past := time.Now().AddDate(0, 0, -40)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(keep, past, past))

	sink := DirSink{Dir: dir, RetentionDays: 30}
	require.NoError(t, sink.Deliver(context.Background(), "schedules_2026-06-01_0930.xlsx", bytes.NewReader([]byte("book"))))

	data, err := os.ReadFile(filepath.Join(dir, "schedules_2026-06-01_0930.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, "book", string(data))
	assert.NoFileExists(t, old)
	assert.FileExists(t, keep)
}

func TestGenerateFilename(t *testing.T) {
	assert.Equal(t, "schedules_2026-12-31_2305.xlsx", GenerateFilename(time.Date(2026, 12, 31, 23, 5, 0, 0, time.UTC)))
}
