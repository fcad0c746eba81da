package models

import "time"

// Service is a bookable offering of a restaurant, e.g. lunch or dinner seating.
type Service struct {
	ID           int64     `json:"id"`
	RestaurantID int64     `json:"restaurant_id"`
	Name         string    `json:"name"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *Service) Validate() error {
	if s.ID <= 0 {
		return invalid("id", "must be positive")
	}
	if s.RestaurantID <= 0 {
		return invalid("restaurant_id", "must be positive")
	}
	if s.Name == "" {
		return invalid("name", "is required")
	}
	return nil
}
