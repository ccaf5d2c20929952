// internal/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"engagement-workers/internal/common/logger"
	"engagement-workers/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

// Freshness windows per view family. Occupancy-bearing task views stay short
// so dashboards converge quickly after a lifecycle event; profile data is
// nearly static and can ride longer.
const (
	TTLTaskViews     = 30 * time.Second
	TTLRosters       = 60 * time.Second
	TTLNotifications = 60 * time.Second
	TTLProfiles      = 5 * time.Minute
	TTLAnalytics     = 5 * time.Minute
)

// Key prefixes. Invalidation deletes by prefix, so every cached view family
// gets exactly one.
const (
	PrefixNGOTasks       = "ngo_tasks"
	PrefixTaskVolunteers = "task_volunteers"
	PrefixAvailableTasks = "available_tasks"
	PrefixVolunteerTasks = "volunteer_tasks"
	PrefixNGOVolunteers  = "ngo_volunteers"
	PrefixNotifications  = "notifications"
	PrefixAnalytics      = "analytics"
	PrefixProfile        = "profile"
	PrefixIdentity       = "identity"
)

const scanCount = 100

func NGOTasksKey(ngoID string) string          { return PrefixNGOTasks + ":" + ngoID }
func TaskVolunteersKey(taskID string) string   { return PrefixTaskVolunteers + ":" + taskID }
func AvailableTasksKey(volID string) string    { return PrefixAvailableTasks + ":" + volID }
func VolunteerTasksKey(volID string) string    { return PrefixVolunteerTasks + ":" + volID }
func NGOVolunteersKey(ngoID string) string     { return PrefixNGOVolunteers + ":" + ngoID }
func NotificationsKey(userType, id string) string {
	return PrefixNotifications + ":" + userType + ":" + id
}
func AnalyticsKey(ngoID string) string { return PrefixAnalytics + ":" + ngoID }
func ProfileKey(userType, id string) string {
	return PrefixProfile + ":" + userType + ":" + id
}

// IdentityKey takes a token digest, never the raw token.
func IdentityKey(tokenHash string) string { return PrefixIdentity + ":" + tokenHash }

// Cache is the read-view cache over Redis. It is strictly an accelerator:
// every method degrades to a no-op or a loader call when Redis is down, and
// no caller ever fails because of it.
type Cache struct {
	client *redis.Client
	logger logger.Logger
}

func New(client *redis.Client, log logger.Logger) *Cache {
	return &Cache{
		client: client,
		logger: log.Named("cache"),
	}
}

// GetJSON reads key and unmarshals it into dest. The boolean reports a hit.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// Stale shape from an older build: treat as a miss and let the
		// loader overwrite it.
		return false, nil
	}
	return true, nil
}

// SetJSON stores value under key for ttl.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

// Fetch is the read-through path. On a hit it unmarshals the cached view into
// dest and returns. On a miss it runs load, which must fill dest, then stores
// dest for ttl. Loader errors propagate; Redis errors only log.
func (c *Cache) Fetch(ctx context.Context, key string, ttl time.Duration, dest interface{}, load func(ctx context.Context) error) error {
	prefix := prefixOf(key)

	hit, err := c.GetJSON(ctx, key, dest)
	if err != nil {
		c.logger.Warn("cache read failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
	if hit {
		metrics.CacheRequests.WithLabelValues(prefix, "hit").Inc()
		return nil
	}
	metrics.CacheRequests.WithLabelValues(prefix, "miss").Inc()

	if err := load(ctx); err != nil {
		return err
	}

	if err := c.SetJSON(ctx, key, dest, ttl); err != nil {
		c.logger.Warn("cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
	return nil
}

// Delete removes individual keys. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache delete failed", map[string]interface{}{
			"keys":  keys,
			"error": err.Error(),
		})
	}
}

// DeletePattern removes every key matching pattern using an incremental SCAN
// and returns how many keys were dropped.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) int {
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("cache scan failed", map[string]interface{}{
			"pattern": pattern,
			"error":   err.Error(),
		})
		return 0
	}
	if len(keys) == 0 {
		return 0
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache delete failed", map[string]interface{}{
			"pattern": pattern,
			"error":   err.Error(),
		})
		return 0
	}
	return len(keys)
}

// InvalidateTask drops every view that embeds this task's occupancy or
// roster. Volunteer-side task lists are keyed per volunteer, so those go by
// prefix. Runs synchronously after the write commits.
func (c *Cache) InvalidateTask(ctx context.Context, taskID, ngoID string) {
	c.Delete(ctx, TaskVolunteersKey(taskID))
	if ngoID != "" {
		c.Delete(ctx, NGOTasksKey(ngoID), AnalyticsKey(ngoID))
	}
	c.DeletePattern(ctx, PrefixAvailableTasks+":*")
	c.DeletePattern(ctx, PrefixVolunteerTasks+":*")
	metrics.CacheInvalidations.WithLabelValues("task").Inc()
}

// InvalidateNGO drops the NGO-side dashboard views.
func (c *Cache) InvalidateNGO(ctx context.Context, ngoID string) {
	c.Delete(ctx,
		NGOTasksKey(ngoID),
		NGOVolunteersKey(ngoID),
		AnalyticsKey(ngoID),
		NotificationsKey("ngo", ngoID),
	)
	metrics.CacheInvalidations.WithLabelValues("ngo").Inc()
}

// InvalidateVolunteer drops the volunteer-side views.
func (c *Cache) InvalidateVolunteer(ctx context.Context, volunteerID string) {
	c.Delete(ctx,
		AvailableTasksKey(volunteerID),
		VolunteerTasksKey(volunteerID),
		NotificationsKey("volunteer", volunteerID),
		ProfileKey("volunteer", volunteerID),
	)
	metrics.CacheInvalidations.WithLabelValues("volunteer").Inc()
}

func prefixOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}
