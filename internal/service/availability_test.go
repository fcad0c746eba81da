package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"prenota/internal/models"
	"prenota/internal/schedule"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) LoadVersions(ctx context.Context, serviceID int64) ([]models.Version, error) {
	args := m.Called(ctx, serviceID)
	return args.Get(0).([]models.Version), args.Error(1)
}
func (m *mockStore) LoadWeeklyDays(ctx context.Context, versionID int64) ([]models.WeeklyDay, error) {
	args := m.Called(ctx, versionID)
	return args.Get(0).([]models.WeeklyDay), args.Error(1)
}
func (m *mockStore) LoadExceptions(ctx context.Context, versionID int64, date time.Time) ([]models.Exception, error) {
	args := m.Called(ctx, versionID, date)
	return args.Get(0).([]models.Exception), args.Error(1)
}
func (m *mockStore) LoadSlotPolicy(ctx context.Context, versionID int64) (*models.SlotPolicy, error) {
	args := m.Called(ctx, versionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SlotPolicy), args.Error(1)
}
func (m *mockStore) CountReservations(ctx context.Context, serviceID int64, date time.Time, start, end models.Clock) (int, error) {
	args := m.Called(ctx, serviceID, date, start, end)
	return args.Int(0), args.Error(1)
}
func (m *mockStore) CountReservationsForDate(ctx context.Context, serviceID int64, date time.Time) (int, error) {
	args := m.Called(ctx, serviceID, date)
	return args.Int(0), args.Error(1)
}
func (m *mockStore) ListRestaurantServices(ctx context.Context, restaurantID int64) ([]models.Service, error) {
	args := m.Called(ctx, restaurantID)
	return args.Get(0).([]models.Service), args.Error(1)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, serviceID int64, date time.Time) (schedule.Result, bool) {
	args := m.Called(ctx, serviceID, date)
	return args.Get(0).(schedule.Result), args.Bool(1)
}
func (m *mockCache) Set(ctx context.Context, res schedule.Result) error {
	return m.Called(ctx, res).Error(0)
}
func (m *mockCache) InvalidateService(ctx context.Context, serviceID int64) error {
	return m.Called(ctx, serviceID).Error(0)
}

// 2026-06-01 is a Monday.
var monday = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func clockPtr(s string) *models.Clock {
	c := models.MustClock(s)
	return &c
}

func openWeek(versionID int64, open, closing string) []models.WeeklyDay {
	days := make([]models.WeeklyDay, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		days = append(days, models.WeeklyDay{
			VersionID:   versionID,
			DayOfWeek:   d,
			OpeningTime: clockPtr(open),
			ClosingTime: clockPtr(closing),
		})
	}
	return days
}

// expectService wires a 09:00-12:00 service with 60 minute slots and capacity 2.
func expectService(store *mockStore, serviceID int64) {
	versions := []models.Version{
		{ID: 7, ServiceID: serviceID, State: models.VersionActive, EffectiveFrom: monday.AddDate(0, -1, 0)},
	}
	store.On("LoadVersions", mock.Anything, serviceID).Return(versions, nil)
	store.On("LoadWeeklyDays", mock.Anything, int64(7)).Return(openWeek(7, "09:00", "12:00"), nil)
	store.On("LoadExceptions", mock.Anything, int64(7), mock.Anything).Return([]models.Exception{}, nil)
	store.On("LoadSlotPolicy", mock.Anything, int64(7)).Return(&models.SlotPolicy{
		VersionID:                 7,
		StartTime:                 models.MustClock("09:00"),
		EndTime:                   models.MustClock("12:00"),
		SlotDurationMinutes:       60,
		MaxConcurrentReservations: 2,
	}, nil)
}

func newTestService(store AvailabilityStore, cache ResultCache) *AvailabilityService {
	logger := zerolog.Nop()
	return NewAvailabilityService(store, cache, &logger, 5)
}

func TestGetAvailableSlots_AppliesReservations(t *testing.T) {
	store := new(mockStore)
	expectService(store, 1)
	store.On("CountReservations", mock.Anything, int64(1), monday, models.MustClock("09:00"), models.MustClock("10:00")).Return(2, nil)
	store.On("CountReservations", mock.Anything, int64(1), monday, models.MustClock("10:00"), models.MustClock("11:00")).Return(1, nil)
	store.On("CountReservations", mock.Anything, int64(1), monday, models.MustClock("11:00"), models.MustClock("12:00")).Return(0, nil)
	store.On("CountReservationsForDate", mock.Anything, int64(1), monday).Return(3, nil)

	svc := newTestService(store, nil)
	res, err := svc.GetAvailableSlots(context.Background(), 1, monday, monday.Add(-time.Hour))
	require.NoError(t, err)

	require.Len(t, res.Slots, 3)
	assert.Equal(t, 0, res.Slots[0].CapacityRemaining)
	assert.Equal(t, 1, res.Slots[1].CapacityRemaining)
	assert.Equal(t, 2, res.Slots[2].CapacityRemaining)
	store.AssertExpectations(t)
}

func TestGetAvailableSlots_MissingPolicy(t *testing.T) {
	store := new(mockStore)
	versions := []models.Version{{ID: 7, ServiceID: 1, State: models.VersionActive, EffectiveFrom: monday}}
	store.On("LoadVersions", mock.Anything, int64(1)).Return(versions, nil)
	store.On("LoadWeeklyDays", mock.Anything, int64(7)).Return(openWeek(7, "09:00", "12:00"), nil)
	store.On("LoadExceptions", mock.Anything, int64(7), mock.Anything).Return([]models.Exception{}, nil)
	store.On("LoadSlotPolicy", mock.Anything, int64(7)).Return(nil, schedule.ErrNotFound)

	svc := newTestService(store, nil)
	res, err := svc.GetAvailableSlots(context.Background(), 1, monday, monday)
	require.NoError(t, err)
	assert.True(t, res.Closed())
	assert.Equal(t, schedule.ReasonNoConfiguration, res.Reason)
	store.AssertNotCalled(t, "CountReservations", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetAvailableSlots_StoreError(t *testing.T) {
	store := new(mockStore)
	store.On("LoadVersions", mock.Anything, int64(1)).Return([]models.Version(nil), errors.New("disk on fire"))

	svc := newTestService(store, nil)
	_, err := svc.GetAvailableSlots(context.Background(), 1, monday, monday)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestGetAvailableSlots_Cache(t *testing.T) {
	ctx := context.Background()
	now := monday.AddDate(0, 0, -1)

	t.Run("hit skips the store", func(t *testing.T) {
		store := new(mockStore)
		cache := new(mockCache)
		cached := schedule.Result{ServiceID: 1, Date: "2026-06-01", Status: schedule.StatusOpen}
		cache.On("Get", mock.Anything, int64(1), monday).Return(cached, true)

		res, err := newTestService(store, cache).GetAvailableSlots(ctx, 1, monday, now)
		require.NoError(t, err)
		assert.Equal(t, cached, res)
		store.AssertNotCalled(t, "LoadVersions", mock.Anything, mock.Anything)
	})

	t.Run("miss stores the result", func(t *testing.T) {
		store := new(mockStore)
		expectService(store, 1)
		store.On("CountReservations", mock.Anything, int64(1), monday, mock.Anything, mock.Anything).Return(0, nil)
		store.On("CountReservationsForDate", mock.Anything, int64(1), monday).Return(0, nil)
		cache := new(mockCache)
		cache.On("Get", mock.Anything, int64(1), monday).Return(schedule.Result{}, false)
		cache.On("Set", mock.Anything, mock.AnythingOfType("schedule.Result")).Return(nil)

		_, err := newTestService(store, cache).GetAvailableSlots(ctx, 1, monday, now)
		require.NoError(t, err)
		cache.AssertCalled(t, "Set", mock.Anything, mock.AnythingOfType("schedule.Result"))
	})

	t.Run("today bypasses the cache", func(t *testing.T) {
		store := new(mockStore)
		expectService(store, 1)
		store.On("CountReservations", mock.Anything, int64(1), monday, mock.Anything, mock.Anything).Return(0, nil)
		store.On("CountReservationsForDate", mock.Anything, int64(1), monday).Return(0, nil)
		cache := new(mockCache)

		_, err := newTestService(store, cache).GetAvailableSlots(ctx, 1, monday, monday.Add(10*time.Hour))
		require.NoError(t, err)
		cache.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestGetAvailabilityRange(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	expectService(store, 1)
	store.On("CountReservations", mock.Anything, int64(1), mock.Anything, mock.Anything, mock.Anything).Return(0, nil)
	store.On("CountReservationsForDate", mock.Anything, int64(1), mock.Anything).Return(0, nil)
	svc := newTestService(store, nil)

	results, err := svc.GetAvailabilityRange(ctx, 1, monday, monday.AddDate(0, 0, 2), monday)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "2026-06-03", results[2].Date)

	_, err = svc.GetAvailabilityRange(ctx, 1, monday, monday.AddDate(0, 0, -1), monday)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = svc.GetAvailabilityRange(ctx, 1, monday, monday.AddDate(0, 0, 5), monday)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestGetRestaurantAvailability(t *testing.T) {
	store := new(mockStore)
	store.On("ListRestaurantServices", mock.Anything, int64(50)).Return([]models.Service{
		{ID: 1, RestaurantID: 50, Name: "lunch", IsActive: true},
		{ID: 2, RestaurantID: 50, Name: "broken", IsActive: true},
	}, nil)
	expectService(store, 1)
	store.On("CountReservations", mock.Anything, int64(1), mock.Anything, mock.Anything, mock.Anything).Return(0, nil)
	store.On("CountReservationsForDate", mock.Anything, int64(1), mock.Anything).Return(0, nil)
	store.On("LoadVersions", mock.Anything, int64(2)).Return([]models.Version(nil), errors.New("boom"))

	out, err := newTestService(store, nil).GetRestaurantAvailability(context.Background(), 50, monday, monday)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, out.Failed)
	require.Len(t, out.Services, 1)
	require.Len(t, out.Slots, 3)
	assert.Equal(t, "lunch", out.Slots[0].ServiceName)
	assert.Equal(t, "09:00", out.Slots[0].Start.String())
}

func TestGetSlotDetails(t *testing.T) {
	store := new(mockStore)
	expectService(store, 1)
	store.On("CountReservations", mock.Anything, int64(1), mock.Anything, mock.Anything, mock.Anything).Return(0, nil)
	store.On("CountReservationsForDate", mock.Anything, int64(1), mock.Anything).Return(0, nil)
	svc := newTestService(store, nil)

	slot, err := svc.GetSlotDetails(context.Background(), 1, monday, models.MustClock("10:00"), monday)
	require.NoError(t, err)
	assert.Equal(t, "11:00", slot.End.String())

	_, err = svc.GetSlotDetails(context.Background(), 1, monday, models.MustClock("10:30"), monday)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}
