package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"prenota/internal/config"
	"prenota/internal/models"
	"prenota/internal/schedule"
)

// SyncReport lists what a schedules.yaml sync touched.
type SyncReport struct {
	Services        []int64
	CreatedVersions int
	Holidays        int
}

// SyncSchedulesFromConfig applies schedules.yaml to the database. It upserts services,
// finds or creates each seed version (matched by effective_from), aligns its weekly rows
// and slot policy, adds holiday closures and marks services missing from the file inactive.
func (db *DB) SyncSchedulesFromConfig(ctx context.Context, cfg *config.SchedulesConfig) (*SyncReport, error) {
	if cfg == nil {
		return nil, fmt.Errorf("schedules config is nil")
	}

	report := &SyncReport{}
	seen := make(map[int64]struct{})

	for i := range cfg.Services {
		sc := &cfg.Services[i]
		err := db.UpsertService(ctx, &models.Service{
			ID:           sc.ID,
			RestaurantID: sc.RestaurantID,
			Name:         sc.Name,
			IsActive:     sc.IsActive,
		})
		if err != nil {
			return report, err
		}
		seen[sc.ID] = struct{}{}

		version, created, err := db.syncVersion(ctx, sc)
		if err != nil {
			return report, fmt.Errorf("sync service %d version: %w", sc.ID, err)
		}
		if created {
			report.CreatedVersions++
		}

		if err := db.syncWeek(ctx, sc, version.ID); err != nil {
			return report, fmt.Errorf("sync service %d schedule: %w", sc.ID, err)
		}

		n, err := db.syncHolidays(ctx, cfg.Holidays, version)
		if err != nil {
			return report, fmt.Errorf("sync service %d holidays: %w", sc.ID, err)
		}
		report.Holidays += n

		payload, _ := json.Marshal(sc)
		if err := db.AppendAudit(ctx, &models.AuditEntry{
			EntityType: models.AuditVersion,
			EntityID:   version.ID,
			ServiceID:  sc.ID,
			Action:     models.ActionSynced,
			Payload:    payload,
		}); err != nil {
			return report, err
		}
		report.Services = append(report.Services, sc.ID)
	}

	if err := db.DeactivateServicesExcept(ctx, seen); err != nil {
		return report, err
	}

	db.logger.Info().
		Int("services", len(report.Services)).
		Int("created_versions", report.CreatedVersions).
		Int("holidays", report.Holidays).
		Msg("Schedules synced")
	return report, nil
}

func (db *DB) syncVersion(ctx context.Context, sc *config.ServiceConfig) (*models.Version, bool, error) {
	want, err := sc.Version()
	if err != nil {
		return nil, false, err
	}

	existing, err := db.ListActiveVersions(ctx, sc.ID)
	if err != nil {
		return nil, false, err
	}

	for i := range existing {
		v := existing[i]
		if !models.SameDate(v.EffectiveFrom, want.EffectiveFrom) {
			continue
		}
		if sameEnd(v.EffectiveTo, want.EffectiveTo) {
			return &v, false, nil
		}
		v.EffectiveTo = want.EffectiveTo
		if err := schedule.CheckNoOverlap(existing, &v); err != nil {
			return nil, false, err
		}
		if err := db.UpdateVersion(ctx, &v); err != nil {
			return nil, false, err
		}
		return &v, false, nil
	}

	if err := schedule.CheckNoOverlap(existing, &want); err != nil {
		return nil, false, err
	}
	days, err := sc.WeeklyDays()
	if err != nil {
		return nil, false, err
	}
	policy := sc.SlotPolicy()
	if err := policy.CheckCovers(days); err != nil {
		return nil, false, err
	}
	if err := db.CreateVersionWithWeek(ctx, &want, days, &policy); err != nil {
		return nil, false, err
	}
	return &want, true, nil
}

func sameEnd(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return models.SameDate(*a, *b)
}

func (db *DB) syncWeek(ctx context.Context, sc *config.ServiceConfig, versionID int64) error {
	days, err := sc.WeeklyDays()
	if err != nil {
		return err
	}
	for i := range days {
		days[i].VersionID = versionID
		if err := db.UpsertWeeklyDay(ctx, &days[i]); err != nil {
			return err
		}
	}

	policy := sc.SlotPolicy()
	policy.VersionID = versionID
	if err := policy.CheckCovers(days); err != nil {
		return err
	}
	return db.UpsertSlotPolicy(ctx, &policy)
}

// syncHolidays adds a full closure for every holiday the version covers. Dates that
// already have one are left alone; dates with an hours override are skipped with a warning.
func (db *DB) syncHolidays(ctx context.Context, holidays []config.HolidayConfig, version *models.Version) (int, error) {
	added := 0
	for _, h := range holidays {
		date, err := h.Day()
		if err != nil {
			return added, err
		}
		if !version.Covers(date) {
			continue
		}

		existing, err := db.LoadExceptions(ctx, version.ID, date)
		if err != nil {
			return added, err
		}
		if hasFullClosure(existing) {
			continue
		}

		closure := models.NewFullClosure(date, models.ExceptionClosure, h.Name)
		closure.VersionID = version.ID
		if err := schedule.CheckCompatible(existing, &closure); err != nil {
			if errors.Is(err, schedule.ErrContradictoryExceptions) {
				db.logger.Warn().Err(err).
					Int64("version_id", version.ID).
					Str("date", h.Date).
					Msg("Holiday closure skipped")
				continue
			}
			return added, err
		}
		if err := db.CreateException(ctx, &closure); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

func hasFullClosure(exs []models.Exception) bool {
	for i := range exs {
		if exs[i].IsFullClosure() {
			return true
		}
	}
	return false
}
