package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"prenota/internal/models"
	"prenota/internal/schedule"
)

const keyPrefix = "prenota:availability"

// AvailabilityCache keeps resolved availability in Redis for a short TTL. A nil
// *AvailabilityCache is valid and caches nothing.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps client. A non-positive ttl disables caching.
func New(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl}
}

func (c *AvailabilityCache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

func key(serviceID int64, date time.Time) string {
	return fmt.Sprintf("%s:%d:%s", keyPrefix, serviceID, models.FormatDate(date))
}

// Get returns the cached result for the service and date.
func (c *AvailabilityCache) Get(ctx context.Context, serviceID int64, date time.Time) (schedule.Result, bool) {
	var res schedule.Result
	if !c.enabled() {
		return res, false
	}
	val, err := c.client.Get(ctx, key(serviceID, date)).Bytes()
	if err != nil {
		return res, false
	}
	if err := json.Unmarshal(val, &res); err != nil {
		return res, false
	}
	return res, true
}

// Set stores res under its service and date.
func (c *AvailabilityCache) Set(ctx context.Context, res schedule.Result) error {
	if !c.enabled() {
		return nil
	}
	date, err := models.ParseDate(res.Date)
	if err != nil {
		return fmt.Errorf("cache result date: %w", err)
	}
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(res.ServiceID, date), data, c.ttl).Err()
}

// InvalidateService drops every cached date of the service.
func (c *AvailabilityCache) InvalidateService(ctx context.Context, serviceID int64) error {
	if !c.enabled() {
		return nil
	}
	pattern := fmt.Sprintf("%s:%d:*", keyPrefix, serviceID)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Ping checks the Redis connection for readiness probes.
func (c *AvailabilityCache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}
