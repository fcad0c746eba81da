package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"prenota/internal/events"
	"prenota/internal/metrics"
	"prenota/internal/models"
	"prenota/internal/schedule"
)

// ErrVersionArchived is returned when a write targets an archived version.
var ErrVersionArchived = errors.New("version is archived")

// AdminStore is the persistence used by schedule administration.
type AdminStore interface {
	GetVersion(ctx context.Context, id int64) (*models.Version, error)
	LoadVersions(ctx context.Context, serviceID int64) ([]models.Version, error)
	ListActiveVersions(ctx context.Context, serviceID int64) ([]models.Version, error)
	ListVersionsOverlapping(ctx context.Context, serviceID int64, from time.Time, to *time.Time) ([]models.Version, error)
	MostRecentVersion(ctx context.Context, serviceID int64) (*models.Version, error)
	CreateVersionWithWeek(ctx context.Context, v *models.Version, days []models.WeeklyDay, policy *models.SlotPolicy) error
	UpdateVersion(ctx context.Context, v *models.Version) error

	LoadWeeklyDays(ctx context.Context, versionID int64) ([]models.WeeklyDay, error)
	UpsertWeeklyDay(ctx context.Context, d *models.WeeklyDay) error

	LoadSlotPolicy(ctx context.Context, versionID int64) (*models.SlotPolicy, error)
	UpsertSlotPolicy(ctx context.Context, p *models.SlotPolicy) error
	DeleteSlotPolicy(ctx context.Context, versionID int64) error

	GetException(ctx context.Context, id int64) (*models.Exception, error)
	LoadExceptions(ctx context.Context, versionID int64, date time.Time) ([]models.Exception, error)
	ListExceptions(ctx context.Context, versionID int64, from, to time.Time) ([]models.Exception, error)
	CreateException(ctx context.Context, e *models.Exception) error
	DeleteException(ctx context.Context, id int64) error

	AppendAudit(ctx context.Context, e *models.AuditEntry) error
	ListAudit(ctx context.Context, serviceID int64, limit int) ([]models.AuditEntry, error)
}

// Publisher receives change events after successful writes.
type Publisher interface {
	Publish(event events.Event)
}

// ScheduleService validates and applies administrative schedule changes. Every
// successful write is audited and published.
type ScheduleService struct {
	store  AdminStore
	bus    Publisher
	logger *zerolog.Logger

	// mu serializes check-then-write sequences such as the version overlap check.
	mu sync.Mutex
}

func NewScheduleService(store AdminStore, bus Publisher, logger *zerolog.Logger) *ScheduleService {
	return &ScheduleService{store: store, bus: bus, logger: logger}
}

// ListVersions returns every version of the service, oldest first.
func (s *ScheduleService) ListVersions(ctx context.Context, serviceID int64) ([]models.Version, error) {
	return s.store.LoadVersions(ctx, serviceID)
}

// ActiveVersions returns only ACTIVE versions of the service.
func (s *ScheduleService) ActiveVersions(ctx context.Context, serviceID int64) ([]models.Version, error) {
	return s.store.ListActiveVersions(ctx, serviceID)
}

// VersionsOverlapping returns ACTIVE versions intersecting [from, to]; nil to is open-ended.
func (s *ScheduleService) VersionsOverlapping(ctx context.Context, serviceID int64, from time.Time, to *time.Time) ([]models.Version, error) {
	return s.store.ListVersionsOverlapping(ctx, serviceID, from, to)
}

// MostRecentVersion returns the ACTIVE version with the latest start.
func (s *ScheduleService) MostRecentVersion(ctx context.Context, serviceID int64) (*models.Version, error) {
	return s.store.MostRecentVersion(ctx, serviceID)
}

// GetVersion returns one version.
func (s *ScheduleService) GetVersion(ctx context.Context, id int64) (*models.Version, error) {
	return s.store.GetVersion(ctx, id)
}

// VersionChange is the audit payload of a created version.
type VersionChange struct {
	Version    *models.Version    `json:"version"`
	WeeklyDays []models.WeeklyDay `json:"weekly_days"`
	SlotPolicy *models.SlotPolicy `json:"slot_policy,omitempty"`
}

// CreateVersion stores a new ACTIVE version together with its seven weekly rows and,
// optionally, its slot policy. The version must not overlap another ACTIVE version of
// the service.
func (s *ScheduleService) CreateVersion(ctx context.Context, v *models.Version, days []models.WeeklyDay, policy *models.SlotPolicy) error {
	if v.State == "" {
		v.State = models.VersionActive
	}
	if v.State != models.VersionActive {
		return s.fail(models.AuditVersion, fmt.Errorf("%w: new versions start ACTIVE", schedule.ErrInvalidTransition))
	}
	if err := v.Validate(); err != nil {
		return s.fail(models.AuditVersion, err)
	}
	if err := schedule.CheckFullWeek(days); err != nil {
		return s.fail(models.AuditVersion, err)
	}
	for i := range days {
		if err := days[i].Validate(); err != nil {
			return s.fail(models.AuditVersion, err)
		}
	}
	if policy != nil {
		if err := policy.Validate(); err != nil {
			return s.fail(models.AuditVersion, err)
		}
		if err := policy.CheckCovers(days); err != nil {
			return s.fail(models.AuditVersion, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.ListActiveVersions(ctx, v.ServiceID)
	if err != nil {
		return err
	}
	if err := schedule.CheckNoOverlap(existing, v); err != nil {
		return s.fail(models.AuditVersion, err)
	}
	if err := s.store.CreateVersionWithWeek(ctx, v, days, policy); err != nil {
		return s.fail(models.AuditVersion, err)
	}

	change := VersionChange{Version: v, WeeklyDays: days, SlotPolicy: policy}
	return s.record(ctx, models.AuditVersion, models.ActionCreated, v.ID, v.ServiceID, v.ID, events.VersionChanged, change)
}

// UpdateVersion changes the range and notes of an ACTIVE version. State changes go
// through ArchiveVersion.
func (s *ScheduleService) UpdateVersion(ctx context.Context, v *models.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.GetVersion(ctx, v.ID)
	if err != nil {
		return err
	}
	if current.State == models.VersionArchived {
		return s.fail(models.AuditVersion, fmt.Errorf("%w: version %d", ErrVersionArchived, v.ID))
	}

	updated := *current
	updated.EffectiveFrom = models.DateOf(v.EffectiveFrom)
	updated.EffectiveTo = v.EffectiveTo
	updated.Notes = v.Notes
	if v.State != "" && v.State != current.State {
		if err := schedule.Transition(&updated, v.State); err != nil {
			return s.fail(models.AuditVersion, err)
		}
	}
	if err := updated.Validate(); err != nil {
		return s.fail(models.AuditVersion, err)
	}

	if err := s.checkExceptionsCovered(ctx, &updated); err != nil {
		return err
	}

	existing, err := s.store.ListActiveVersions(ctx, updated.ServiceID)
	if err != nil {
		return err
	}
	if err := schedule.CheckNoOverlap(existing, &updated); err != nil {
		return s.fail(models.AuditVersion, err)
	}
	if err := s.store.UpdateVersion(ctx, &updated); err != nil {
		return s.fail(models.AuditVersion, err)
	}
	*v = updated

	return s.record(ctx, models.AuditVersion, models.ActionUpdated, v.ID, v.ServiceID, v.ID, events.VersionChanged, v)
}

// ArchiveVersion moves an ACTIVE version to ARCHIVED. Archiving is permanent.
func (s *ScheduleService) ArchiveVersion(ctx context.Context, id int64) (*models.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.store.GetVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := schedule.Transition(v, models.VersionArchived); err != nil {
		return nil, s.fail(models.AuditVersion, err)
	}
	if err := s.store.UpdateVersion(ctx, v); err != nil {
		return nil, s.fail(models.AuditVersion, err)
	}

	if err := s.record(ctx, models.AuditVersion, models.ActionArchived, v.ID, v.ServiceID, v.ID, events.VersionChanged, v); err != nil {
		return nil, err
	}
	return v, nil
}

// WeeklySchedule returns the version's weekly rows, Monday first.
func (s *ScheduleService) WeeklySchedule(ctx context.Context, versionID int64) ([]models.WeeklyDay, error) {
	if _, err := s.store.GetVersion(ctx, versionID); err != nil {
		return nil, err
	}
	days, err := s.store.LoadWeeklyDays(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return schedule.WeekView(days, versionID), nil
}

// UpdateWeeklyDay replaces the row of one weekday. The version's slot policy, when set,
// must still cover the new hours.
func (s *ScheduleService) UpdateWeeklyDay(ctx context.Context, d *models.WeeklyDay) error {
	if err := d.Validate(); err != nil {
		return s.fail(models.AuditWeeklyDay, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.writableVersion(ctx, d.VersionID)
	if err != nil {
		return s.fail(models.AuditWeeklyDay, err)
	}

	policy, err := s.store.LoadSlotPolicy(ctx, d.VersionID)
	switch {
	case errors.Is(err, schedule.ErrNotFound):
	case err != nil:
		return err
	default:
		if err := policy.CheckCovers([]models.WeeklyDay{*d}); err != nil {
			return s.fail(models.AuditWeeklyDay, err)
		}
	}

	if err := s.store.UpsertWeeklyDay(ctx, d); err != nil {
		return s.fail(models.AuditWeeklyDay, err)
	}
	return s.record(ctx, models.AuditWeeklyDay, models.ActionUpdated, d.ID, v.ServiceID, v.ID, events.WeeklyDayChanged, d)
}

// GetSlotPolicy returns the version's slot policy.
func (s *ScheduleService) GetSlotPolicy(ctx context.Context, versionID int64) (*models.SlotPolicy, error) {
	return s.store.LoadSlotPolicy(ctx, versionID)
}

// UpsertSlotPolicy sets the version's policy. It must cover every open weekly day.
func (s *ScheduleService) UpsertSlotPolicy(ctx context.Context, p *models.SlotPolicy) error {
	if err := p.Validate(); err != nil {
		return s.fail(models.AuditSlotPolicy, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.writableVersion(ctx, p.VersionID)
	if err != nil {
		return s.fail(models.AuditSlotPolicy, err)
	}

	days, err := s.store.LoadWeeklyDays(ctx, p.VersionID)
	if err != nil {
		return err
	}
	if err := p.CheckCovers(days); err != nil {
		return s.fail(models.AuditSlotPolicy, err)
	}

	if err := s.store.UpsertSlotPolicy(ctx, p); err != nil {
		return s.fail(models.AuditSlotPolicy, err)
	}
	return s.record(ctx, models.AuditSlotPolicy, models.ActionUpdated, p.ID, v.ServiceID, v.ID, events.PolicyChanged, p)
}

// DeleteSlotPolicy removes the version's policy. Until a new one is set the version
// resolves as unconfigured.
func (s *ScheduleService) DeleteSlotPolicy(ctx context.Context, versionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.writableVersion(ctx, versionID)
	if err != nil {
		return s.fail(models.AuditSlotPolicy, err)
	}
	if err := s.store.DeleteSlotPolicy(ctx, versionID); err != nil {
		return s.fail(models.AuditSlotPolicy, err)
	}
	return s.record(ctx, models.AuditSlotPolicy, models.ActionDeleted, versionID, v.ServiceID, v.ID, events.PolicyChanged, nil)
}

// ListExceptions returns the version's exceptions within [from, to].
func (s *ScheduleService) ListExceptions(ctx context.Context, versionID int64, from, to time.Time) ([]models.Exception, error) {
	return s.store.ListExceptions(ctx, versionID, from, to)
}

// CreateException stores a date override. The date must fall within the version's
// range and must not contradict the exceptions already on that date.
func (s *ScheduleService) CreateException(ctx context.Context, e *models.Exception) error {
	e.Date = models.DateOf(e.Date)
	if err := e.Validate(); err != nil {
		return s.fail(models.AuditException, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.writableVersion(ctx, e.VersionID)
	if err != nil {
		return s.fail(models.AuditException, err)
	}
	if !v.Covers(e.Date) {
		return s.fail(models.AuditException, &models.ValidationError{
			Field:   "exception_date",
			Message: fmt.Sprintf("%s is outside the version's effective range", models.FormatDate(e.Date)),
		})
	}

	existing, err := s.store.LoadExceptions(ctx, e.VersionID, e.Date)
	if err != nil {
		return err
	}
	if err := schedule.CheckCompatible(existing, e); err != nil {
		return s.fail(models.AuditException, err)
	}

	if err := s.store.CreateException(ctx, e); err != nil {
		return s.fail(models.AuditException, err)
	}
	return s.record(ctx, models.AuditException, models.ActionCreated, e.ID, v.ServiceID, v.ID, events.ExceptionChanged, e)
}

// DeleteException removes one exception.
func (s *ScheduleService) DeleteException(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.store.GetException(ctx, id)
	if err != nil {
		return err
	}
	v, err := s.store.GetVersion(ctx, e.VersionID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteException(ctx, id); err != nil {
		return s.fail(models.AuditException, err)
	}
	return s.record(ctx, models.AuditException, models.ActionDeleted, id, v.ServiceID, v.ID, events.ExceptionChanged, e)
}

// AuditLog returns the newest audit entries of the service.
func (s *ScheduleService) AuditLog(ctx context.Context, serviceID int64, limit int) ([]models.AuditEntry, error) {
	return s.store.ListAudit(ctx, serviceID, limit)
}

var (
	firstDate = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	lastDate  = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
)

// checkExceptionsCovered rejects a range change that would leave stored exceptions
// of the version outside its effective range.
func (s *ScheduleService) checkExceptionsCovered(ctx context.Context, v *models.Version) error {
	exs, err := s.store.ListExceptions(ctx, v.ID, firstDate, lastDate)
	if err != nil {
		return err
	}
	for i := range exs {
		if !v.Covers(exs[i].Date) {
			msg := fmt.Sprintf("exception %d on %s would fall outside the new range; delete it first",
				exs[i].ID, models.FormatDate(exs[i].Date))
			return s.fail(models.AuditVersion, &models.ValidationError{Field: "effective_from", Message: msg})
		}
	}
	return nil
}

func (s *ScheduleService) writableVersion(ctx context.Context, id int64) (*models.Version, error) {
	v, err := s.store.GetVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.State == models.VersionArchived {
		return nil, fmt.Errorf("%w: version %d", ErrVersionArchived, id)
	}
	return v, nil
}

// record audits a successful write and publishes the change event.
func (s *ScheduleService) record(ctx context.Context, entity models.AuditEntity, action models.AuditAction,
	entityID, serviceID, versionID int64, eventType string, payload interface{}) error {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}
	}

	entry := &models.AuditEntry{
		EntityType: entity,
		EntityID:   entityID,
		ServiceID:  serviceID,
		Action:     action,
		Payload:    data,
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("entity", string(entity)).
			Int64("entity_id", entityID).
			Msg("Failed to write schedule audit entry")
	}

	metrics.IncAdminWrite(string(entity), "ok")
	s.logger.Info().
		Str("entity", string(entity)).
		Str("action", string(action)).
		Int64("entity_id", entityID).
		Int64("service_id", serviceID).
		Msg("Schedule configuration changed")

	if s.bus != nil {
		s.bus.Publish(events.Event{
			ID:        entry.EventID,
			Type:      eventType,
			ServiceID: serviceID,
			VersionID: versionID,
			Payload:   data,
		})
	}
	return nil
}

func (s *ScheduleService) fail(entity models.AuditEntity, err error) error {
	metrics.IncAdminWrite(string(entity), "rejected")
	return err
}
