package database

import (
	"context"
	"fmt"
	"time"

	"prenota/internal/models"
)

// UpsertService creates the service or refreshes its name, restaurant and active flag,
// preserving created_at.
func (db *DB) UpsertService(ctx context.Context, s *models.Service) error {
	if err := s.Validate(); err != nil {
		return err
	}
	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO services (id, restaurant_id, name, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, COALESCE((SELECT created_at FROM services WHERE id = ?), ?), ?)
		ON CONFLICT(id) DO UPDATE SET
			restaurant_id = excluded.restaurant_id,
			name = excluded.name,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		s.ID, s.RestaurantID, s.Name, s.IsActive, s.ID, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert service %d: %w", s.ID, err)
	}
	return nil
}

// GetService returns one service by id.
func (db *DB) GetService(ctx context.Context, id int64) (*models.Service, error) {
	var s models.Service
	err := db.QueryRowContext(ctx, `
		SELECT id, restaurant_id, name, is_active, created_at, updated_at
		FROM services WHERE id = ?`, id,
	).Scan(&s.ID, &s.RestaurantID, &s.Name, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "service", id)
	}
	return &s, nil
}

// ListRestaurantServices returns the active services of a restaurant ordered by id.
func (db *DB) ListRestaurantServices(ctx context.Context, restaurantID int64) ([]models.Service, error) {
	return db.listServices(ctx, `
		SELECT id, restaurant_id, name, is_active, created_at, updated_at
		FROM services WHERE restaurant_id = ? AND is_active = 1 ORDER BY id`, restaurantID)
}

// ListServices returns every service, active or not.
func (db *DB) ListServices(ctx context.Context) ([]models.Service, error) {
	return db.listServices(ctx, `
		SELECT id, restaurant_id, name, is_active, created_at, updated_at
		FROM services ORDER BY id`)
}

// DeactivateServicesExcept marks every service not in keep inactive.
func (db *DB) DeactivateServicesExcept(ctx context.Context, keep map[int64]struct{}) error {
	services, err := db.ListServices(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, s := range services {
		if _, ok := keep[s.ID]; ok || !s.IsActive {
			continue
		}
		if _, err := db.ExecContext(ctx, `UPDATE services SET is_active = 0, updated_at = ? WHERE id = ?`, now, s.ID); err != nil {
			return fmt.Errorf("deactivate service %d: %w", s.ID, err)
		}
		db.logger.Info().Int64("service_id", s.ID).Msg("Service deactivated")
	}
	return nil
}

func (db *DB) listServices(ctx context.Context, query string, args ...interface{}) ([]models.Service, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		var s models.Service
		if err := rows.Scan(&s.ID, &s.RestaurantID, &s.Name, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	return services, rows.Err()
}
