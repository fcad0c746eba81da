package audit

import (
	"context"
	"fmt"
	"io"
	"time"

	"prenota/internal/models"
	"prenota/internal/schedule"
)

// TableExporter reads the schedule tables to copy into the workbook.
type TableExporter interface {
	GetTableNames(ctx context.Context) ([]string, error)
	GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, []string, error)
}

// AvailabilitySource resolves availability for the report sheet.
type AvailabilitySource interface {
	GetAvailabilityRange(ctx context.Context, serviceID int64, from, to, now time.Time) ([]schedule.Result, error)
}

// ServiceLister lists the services to report on.
type ServiceLister interface {
	ListServices(ctx context.Context) ([]models.Service, error)
}

// ExcelWriter builds a workbook one sheet at a time.
type ExcelWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []interface{}) error
	Save(w io.Writer) error
	Close() error
}

// Sink receives finished workbooks.
type Sink interface {
	Deliver(ctx context.Context, filename string, data io.Reader) error
}

// Logger for export operations. Fields are key/value pairs.
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
}

// GenerateFilename names the export taken at t, e.g. "schedules_2026-06-01_0930.xlsx".
func GenerateFilename(t time.Time) string {
	return fmt.Sprintf("schedules_%s_%02d%02d.xlsx", models.FormatDate(t), t.Hour(), t.Minute())
}
