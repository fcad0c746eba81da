package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"prenota/internal/metrics"
	"prenota/internal/models"
	"prenota/internal/schedule"
)

var (
	ErrInvalidRange = errors.New("invalid date range")
	ErrSlotNotFound = errors.New("slot not found")
)

// AvailabilityStore is what availability queries read from.
type AvailabilityStore interface {
	schedule.ConfigStore
	schedule.ReservationStore
	ListRestaurantServices(ctx context.Context, restaurantID int64) ([]models.Service, error)
}

// ResultCache stores resolved availability between requests.
type ResultCache interface {
	Get(ctx context.Context, serviceID int64, date time.Time) (schedule.Result, bool)
	Set(ctx context.Context, res schedule.Result) error
	InvalidateService(ctx context.Context, serviceID int64) error
}

// AvailabilityService loads configuration and reservation counts and runs the resolver.
type AvailabilityService struct {
	store        AvailabilityStore
	cache        ResultCache
	logger       *zerolog.Logger
	maxRangeDays int
}

// NewAvailabilityService builds the service. cache may be nil.
func NewAvailabilityService(store AvailabilityStore, cache ResultCache, logger *zerolog.Logger, maxRangeDays int) *AvailabilityService {
	if maxRangeDays <= 0 {
		maxRangeDays = 90
	}
	return &AvailabilityService{
		store:        store,
		cache:        cache,
		logger:       logger,
		maxRangeDays: maxRangeDays,
	}
}

// GetAvailableSlots resolves the availability of a service on date as seen at now.
// Results for dates after now's date do not depend on now and are cached.
func (s *AvailabilityService) GetAvailableSlots(ctx context.Context, serviceID int64, date, now time.Time) (schedule.Result, error) {
	date = models.DateOf(date)
	cacheable := s.cache != nil && date.After(models.DateOf(now))

	if cacheable {
		if res, ok := s.cache.Get(ctx, serviceID, date); ok {
			metrics.IncCacheLookup(true)
			return res, nil
		}
		metrics.IncCacheLookup(false)
	}

	started := time.Now()
	res, err := s.resolve(ctx, serviceID, date, now)
	if err != nil {
		metrics.ObserveResolve("error", time.Since(started))
		s.logger.Error().Err(err).
			Int64("service_id", serviceID).
			Str("date", models.FormatDate(date)).
			Msg("Availability resolution failed")
		return schedule.Result{}, err
	}
	metrics.ObserveResolve(outcome(res), time.Since(started))

	if res.Ambiguous {
		metrics.IncAmbiguousSelection()
		s.logger.Warn().
			Int64("service_id", serviceID).
			Int64("version_id", res.VersionID).
			Str("date", res.Date).
			Msg("More than one active version covers the date; using the latest")
	}

	if cacheable {
		if err := s.cache.Set(ctx, res); err != nil {
			s.logger.Warn().Err(err).Int64("service_id", serviceID).Msg("Failed to cache availability")
		}
	}
	return res, nil
}

func outcome(res schedule.Result) string {
	if res.Closed() {
		return string(res.Reason)
	}
	return "open"
}

func (s *AvailabilityService) resolve(ctx context.Context, serviceID int64, date, now time.Time) (schedule.Result, error) {
	snap, err := s.loadSnapshot(ctx, serviceID, date)
	if err != nil {
		return schedule.Result{}, err
	}

	plan, err := schedule.PlanDay(snap, now)
	if err != nil {
		return schedule.Result{}, fmt.Errorf("service %d on %s: %w", serviceID, models.FormatDate(date), err)
	}

	if plan.Closed() == "" && len(plan.Candidates) > 0 {
		if err := s.loadCounts(ctx, snap, plan.Candidates); err != nil {
			return schedule.Result{}, err
		}
	}
	return schedule.Finish(snap, plan), nil
}

// loadSnapshot reads the versions of the service and, for the version that governs
// date, its weekly rows, exceptions on date and slot policy.
func (s *AvailabilityService) loadSnapshot(ctx context.Context, serviceID int64, date time.Time) (*schedule.Snapshot, error) {
	versions, err := s.store.LoadVersions(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("load versions: %w", err)
	}
	snap := &schedule.Snapshot{ServiceID: serviceID, Date: date, Versions: versions}

	sel := schedule.SelectVersion(versions, serviceID, date)
	if !sel.Found {
		return snap, nil
	}
	versionID := sel.Version.ID

	if snap.WeeklyDays, err = s.store.LoadWeeklyDays(ctx, versionID); err != nil {
		return nil, fmt.Errorf("load weekly days: %w", err)
	}
	if snap.Exceptions, err = s.store.LoadExceptions(ctx, versionID, date); err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}

	policy, err := s.store.LoadSlotPolicy(ctx, versionID)
	switch {
	case errors.Is(err, schedule.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load slot policy: %w", err)
	default:
		snap.Policy = policy
	}
	return snap, nil
}

func (s *AvailabilityService) loadCounts(ctx context.Context, snap *schedule.Snapshot, candidates []models.TimeRange) error {
	snap.Booked = make(map[models.Clock]int, len(candidates))
	for _, c := range candidates {
		n, err := s.store.CountReservations(ctx, snap.ServiceID, snap.Date, c.Start, c.End)
		if err != nil {
			return fmt.Errorf("count reservations %s: %w", c, err)
		}
		if n > 0 {
			snap.Booked[c.Start] = n
		}
	}

	total, err := s.store.CountReservationsForDate(ctx, snap.ServiceID, snap.Date)
	if err != nil {
		return fmt.Errorf("count reservations for date: %w", err)
	}
	snap.DayTotal = total
	return nil
}

// GetAvailabilityRange resolves every date in [from, to]. The range may span at most
// maxRangeDays days.
func (s *AvailabilityService) GetAvailabilityRange(ctx context.Context, serviceID int64, from, to, now time.Time) ([]schedule.Result, error) {
	from, to = models.DateOf(from), models.DateOf(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end date before start date", ErrInvalidRange)
	}
	days := int(to.Sub(from).Hours()/24) + 1
	if days > s.maxRangeDays {
		return nil, fmt.Errorf("%w: range exceeds %d days", ErrInvalidRange, s.maxRangeDays)
	}

	results := make([]schedule.Result, 0, days)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.GetAvailableSlots(ctx, serviceID, d, now)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// ServiceSlot is one slot of a restaurant-wide listing.
type ServiceSlot struct {
	ServiceID   int64  `json:"service_id"`
	ServiceName string `json:"service_name"`
	models.TimeSlot
}

// RestaurantAvailability merges the open slots of every active service of a restaurant.
type RestaurantAvailability struct {
	RestaurantID int64             `json:"restaurant_id"`
	Date         string            `json:"date"`
	Slots        []ServiceSlot     `json:"slots"`
	Services     []schedule.Result `json:"services"`
	Failed       []int64           `json:"failed_services,omitempty"`
}

// GetRestaurantAvailability resolves every active service of the restaurant on date.
// A service that fails to resolve is logged and skipped.
func (s *AvailabilityService) GetRestaurantAvailability(ctx context.Context, restaurantID int64, date, now time.Time) (*RestaurantAvailability, error) {
	services, err := s.store.ListRestaurantServices(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list services of restaurant %d: %w", restaurantID, err)
	}

	out := &RestaurantAvailability{
		RestaurantID: restaurantID,
		Date:         models.FormatDate(date),
		Slots:        []ServiceSlot{},
		Services:     []schedule.Result{},
	}
	for _, svc := range services {
		res, err := s.GetAvailableSlots(ctx, svc.ID, date, now)
		if err != nil {
			s.logger.Warn().Err(err).
				Int64("restaurant_id", restaurantID).
				Int64("service_id", svc.ID).
				Msg("Skipping service in restaurant availability")
			out.Failed = append(out.Failed, svc.ID)
			continue
		}
		out.Services = append(out.Services, res)
		for _, slot := range schedule.AvailableSlots(res.Slots) {
			out.Slots = append(out.Slots, ServiceSlot{ServiceID: svc.ID, ServiceName: svc.Name, TimeSlot: slot})
		}
	}

	sort.SliceStable(out.Slots, func(i, j int) bool {
		if out.Slots[i].Start != out.Slots[j].Start {
			return out.Slots[i].Start < out.Slots[j].Start
		}
		return out.Slots[i].ServiceID < out.Slots[j].ServiceID
	})
	return out, nil
}

// GetSlotDetails returns the slot of the service starting at start on date.
func (s *AvailabilityService) GetSlotDetails(ctx context.Context, serviceID int64, date time.Time, start models.Clock, now time.Time) (models.TimeSlot, error) {
	res, err := s.GetAvailableSlots(ctx, serviceID, date, now)
	if err != nil {
		return models.TimeSlot{}, err
	}
	slot, ok := schedule.SlotDetails(res, start)
	if !ok {
		return models.TimeSlot{}, fmt.Errorf("%w: service %d %s %s", ErrSlotNotFound, serviceID, res.Date, start)
	}
	return slot, nil
}

// InvalidateService drops cached results of the service.
func (s *AvailabilityService) InvalidateService(ctx context.Context, serviceID int64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateService(ctx, serviceID)
}
