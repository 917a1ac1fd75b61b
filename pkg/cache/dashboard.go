// Package cache stores computed dashboard results in Redis.
//
// Entries are keyed by an owner generation number. Invalidating an owner
// bumps the generation, which orphans every entry written before it; the
// orphans expire on their own TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "visibility"

// DashboardCache is a best-effort cache. Redis errors are logged and
// treated as misses, and a nil *DashboardCache is a valid, always-empty cache.
type DashboardCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewDashboardCache returns a cache backed by client, or nil when client is nil.
func NewDashboardCache(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *DashboardCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DashboardCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("dashboard-cache"),
	}
}

func generationKey(ownerID uuid.UUID) string {
	return fmt.Sprintf("%s:gen:%s", keyPrefix, ownerID)
}

func entryKey(ownerID uuid.UUID, generation int64, name string) string {
	return fmt.Sprintf("%s:dash:%s:%d:%s", keyPrefix, ownerID, generation, name)
}

// OverviewKey names the cached overview for a project (or all projects) and window.
func OverviewKey(projectID *uuid.UUID, days int) string {
	scope := "all"
	if projectID != nil {
		scope = projectID.String()
	}
	return "overview:" + scope + ":" + strconv.Itoa(days)
}

func (c *DashboardCache) generation(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(ownerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Get decodes the entry called name into dest and reports whether it was found.
func (c *DashboardCache) Get(ctx context.Context, ownerID uuid.UUID, name string, dest any) bool {
	if c == nil {
		return false
	}

	gen, err := c.generation(ctx, ownerID)
	if err != nil {
		c.logger.Warn("Failed to read cache generation", zap.Error(err))
		return false
	}

	data, err := c.client.Get(ctx, entryKey(ownerID, gen, name)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Failed to read cache entry", zap.String("key", name), zap.Error(err))
		}
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("Discarding undecodable cache entry", zap.String("key", name), zap.Error(err))
		return false
	}
	return true
}

// Set stores value under name for the owner's current generation.
func (c *DashboardCache) Set(ctx context.Context, ownerID uuid.UUID, name string, value any) {
	if c == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Failed to encode cache entry", zap.String("key", name), zap.Error(err))
		return
	}

	gen, err := c.generation(ctx, ownerID)
	if err != nil {
		c.logger.Warn("Failed to read cache generation", zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, entryKey(ownerID, gen, name), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to write cache entry", zap.String("key", name), zap.Error(err))
	}
}

// InvalidateOwner orphans every cached entry of the owner.
func (c *DashboardCache) InvalidateOwner(ctx context.Context, ownerID uuid.UUID) {
	if c == nil {
		return
	}

	if err := c.client.Incr(ctx, generationKey(ownerID)).Err(); err != nil {
		c.logger.Warn("Failed to invalidate dashboard cache",
			zap.String("owner_id", ownerID.String()),
			zap.Error(err))
	}
}
