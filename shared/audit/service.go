package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"prenota/internal/models"
	"prenota/internal/schedule"
)

const availabilitySheet = "availability"

// Config holds configuration for the export service.
type Config struct {
	// Interval between exports. Default: 24h.
	Interval time.Duration

	// ReportDays is how many days, starting today, the availability sheet covers.
	// Default: 7.
	ReportDays int

	// RetentionDays is how long DirSink keeps old exports. Zero keeps everything.
	RetentionDays int

	// ExportOnStart runs one export immediately when the service starts.
	ExportOnStart bool
}

func DefaultConfig() *Config {
	return &Config{Interval: 24 * time.Hour, ReportDays: 7}
}

// Service periodically exports the schedule tables plus a per-service availability
// report into one workbook and hands it to a Sink.
type Service struct {
	config   *Config
	tables   TableExporter
	services ServiceLister
	avail    AvailabilitySource
	writer   func() ExcelWriter
	sink     Sink
	logger   Logger
	now      func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewService(
	config *Config,
	tables TableExporter,
	services ServiceLister,
	avail AvailabilitySource,
	writerFactory func() ExcelWriter,
	sink Sink,
	logger Logger,
) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}
	if config.ReportDays <= 0 {
		config.ReportDays = 7
	}

	return &Service{
		config:   config,
		tables:   tables,
		services: services,
		avail:    avail,
		writer:   writerFactory,
		sink:     sink,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the export loop.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	if s.logger != nil {
		s.logger.Info("Schedule export started", "interval", s.config.Interval.String())
	}
}

// Stop waits for an export in progress to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	if s.logger != nil {
		s.logger.Info("Schedule export stopped")
	}
}

func (s *Service) loop() {
	defer s.wg.Done()

	if s.config.ExportOnStart {
		s.runLogged()
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runLogged()
		}
	}
}

func (s *Service) runLogged() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if _, err := s.ExportNow(ctx); err != nil && s.logger != nil {
		s.logger.Error("Failed to export schedules", "error", err)
	}
}

// ExportNow builds the workbook and delivers it. It returns the delivered file name.
func (s *Service) ExportNow(ctx context.Context) (string, error) {
	if s.tables == nil || s.writer == nil || s.sink == nil {
		return "", fmt.Errorf("exporter, writer or sink not configured")
	}

	excel := s.writer()
	if excel == nil {
		return "", fmt.Errorf("failed to create excel writer")
	}
	defer excel.Close()

	if err := s.writeTables(ctx, excel); err != nil {
		return "", err
	}
	if s.services != nil && s.avail != nil {
		if err := s.writeAvailability(ctx, excel); err != nil {
			return "", err
		}
	}

	var buf bytes.Buffer
	if err := excel.Save(&buf); err != nil {
		return "", fmt.Errorf("save excel: %w", err)
	}

	filename := GenerateFilename(s.now())
	if err := s.sink.Deliver(ctx, filename, &buf); err != nil {
		return "", fmt.Errorf("deliver %s: %w", filename, err)
	}
	if s.logger != nil {
		s.logger.Info("Schedule export written", "filename", filename)
	}
	return filename, nil
}

// writeTables copies every exported table into its own sheet. A table that fails to
// load is logged and skipped.
func (s *Service) writeTables(ctx context.Context, excel ExcelWriter) error {
	names, err := s.tables.GetTableNames(ctx)
	if err != nil {
		return fmt.Errorf("get table names: %w", err)
	}

	for _, name := range names {
		rows, columns, err := s.tables.GetTableData(ctx, name)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("Failed to get table data", "table", name, "error", err)
			}
			continue
		}
		if err := excel.AddSheet(name); err != nil {
			return err
		}
		if err := excel.WriteHeader(columns); err != nil {
			return err
		}
		for _, row := range rows {
			values := make([]interface{}, len(columns))
			for i, col := range columns {
				values[i] = row[col]
			}
			if err := excel.WriteRow(values); err != nil {
				return err
			}
		}
		if s.logger != nil {
			s.logger.Debug("Exported table", "table", name, "rows", len(rows))
		}
	}
	return nil
}

var availabilityColumns = []string{
	"service_id", "service", "date", "status", "reason", "version_id",
	"slots", "open_slots", "first_slot", "last_slot", "capacity_remaining",
}

// writeAvailability adds one row per service and day for the next ReportDays days.
func (s *Service) writeAvailability(ctx context.Context, excel ExcelWriter) error {
	services, err := s.services.ListServices(ctx)
	if err != nil {
		return fmt.Errorf("list services: %w", err)
	}

	if err := excel.AddSheet(availabilitySheet); err != nil {
		return err
	}
	if err := excel.WriteHeader(availabilityColumns); err != nil {
		return err
	}

	now := s.now()
	from := models.DateOf(now)
	to := from.AddDate(0, 0, s.config.ReportDays-1)
	for _, svc := range services {
		if !svc.IsActive {
			continue
		}
		days, err := s.avail.GetAvailabilityRange(ctx, svc.ID, from, to, now)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("Failed to resolve availability for export", "service_id", svc.ID, "error", err)
			}
			continue
		}
		for _, res := range days {
			if err := excel.WriteRow(availabilityRow(svc, res)); err != nil {
				return err
			}
		}
	}
	return nil
}

func availabilityRow(svc models.Service, res schedule.Result) []interface{} {
	open := schedule.AvailableSlots(res.Slots)
	remaining := 0
	for _, slot := range open {
		remaining += slot.CapacityRemaining
	}
	first, last := "", ""
	if len(res.Slots) > 0 {
		first = res.Slots[0].Start.String()
		last = res.Slots[len(res.Slots)-1].Start.String()
	}
	return []interface{}{
		svc.ID, svc.Name, res.Date, string(res.Status), string(res.Reason), res.VersionID,
		len(res.Slots), len(open), first, last, remaining,
	}
}

// DirSink writes workbooks into a directory and prunes old exports.
type DirSink struct {
	Dir           string
	RetentionDays int
}

func (d DirSink) Deliver(_ context.Context, filename string, data io.Reader) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	f, err := os.Create(filepath.Join(d.Dir, filename))
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return d.prune()
}

func (d DirSink) prune() error {
	if d.RetentionDays <= 0 {
		return nil
	}
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return err
	}
	cutoff := time.Now().AddDate(0, 0, -d.RetentionDays)
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "schedules_") || !strings.HasSuffix(e.Name(), ".xlsx") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(d.Dir, e.Name()))
		}
	}
	return nil
}
