/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for frequently accessed data.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTL values for different cache types
const (
	DefaultChannelListTTL = 5 * time.Minute
	DefaultOnAirTTL       = 10 * time.Second
	DefaultGuideDayTTL    = 10 * time.Minute
	DefaultCarryoverTTL   = 10 * time.Minute
)

// Key prefixes for Redis cache
const (
	KeyChannelList = "saga:cache:channels"
	KeyOnAir       = "saga:cache:onair:"     // + channel_id
	KeyGuideDay    = "saga:cache:guide:"     // + channel_id:date
	KeyCarryover   = "saga:cache:carryover:" // + channel_id:date
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL overrides
	ChannelListTTL time.Duration
	OnAirTTL       time.Duration
	GuideDayTTL    time.Duration
	CarryoverTTL   time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		ChannelListTTL: DefaultChannelListTTL,
		OnAirTTL:       DefaultOnAirTTL,
		GuideDayTTL:    DefaultGuideDayTTL,
		CarryoverTTL:   DefaultCarryoverTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback. Every read
// path it serves also works uncached, so a missing or failing Redis only
// costs latency, never correctness.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// NewWithClient wraps an existing client, used by tests with miniredis.
func NewWithClient(client *redis.Client, cfg Config, logger zerolog.Logger) *Cache {
	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

// delete removes a key from cache.
func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// deletePattern deletes all keys matching a pattern.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	// Use SCAN to find keys (safer than KEYS for production)
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

// Channel caching methods

// CachedChannel represents a cached channel record.
type CachedChannel struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Slug             string `json:"slug"`
	Timezone         string `json:"timezone"`
	GridBlockMinutes int    `json:"grid_block_minutes"`
	DayStartMinutes  int    `json:"day_start_minutes"`
	Active           bool   `json:"active"`
}

// GetChannelList retrieves the cached list of channels.
func (c *Cache) GetChannelList(ctx context.Context) ([]CachedChannel, bool) {
	var channels []CachedChannel
	found, err := c.get(ctx, KeyChannelList, &channels)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Int("count", len(channels)).Msg("channel list cache hit")
	return channels, true
}

// SetChannelList caches the list of channels.
func (c *Cache) SetChannelList(ctx context.Context, channels []CachedChannel) error {
	c.logger.Debug().Int("count", len(channels)).Msg("caching channel list")
	return c.set(ctx, KeyChannelList, channels, c.config.ChannelListTTL)
}

// InvalidateChannelList removes the channel list from cache.
func (c *Cache) InvalidateChannelList(ctx context.Context) error {
	c.logger.Debug().Msg("invalidating channel list cache")
	return c.delete(ctx, KeyChannelList)
}

// On-air caching methods

// CachedOnAir represents the cached now-playing answer for a channel.
// OffsetMS is relative to the cached At; callers re-derive the live
// offset from the event bounds.
type CachedOnAir struct {
	ChannelID     string    `json:"channel_id"`
	At            time.Time `json:"at"`
	CatalogItemID string    `json:"catalog_item_id"`
	SegmentID     *string   `json:"segment_id,omitempty"`
	Kind          string    `json:"kind"`
	Title         string    `json:"title"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
}

// GetOnAir retrieves the cached on-air answer for a channel when the
// cached event still covers the asked instant.
func (c *Cache) GetOnAir(ctx context.Context, channelID string, at time.Time) (*CachedOnAir, bool) {
	var onAir CachedOnAir
	found, err := c.get(ctx, KeyOnAir+channelID, &onAir)
	if err != nil || !found {
		return nil, false
	}
	if at.Before(onAir.StartsAt) || !at.Before(onAir.EndsAt) {
		return nil, false
	}
	c.logger.Debug().Str("channel_id", channelID).Msg("on-air cache hit")
	return &onAir, true
}

// SetOnAir caches the on-air answer for a channel.
func (c *Cache) SetOnAir(ctx context.Context, onAir *CachedOnAir) error {
	c.logger.Debug().Str("channel_id", onAir.ChannelID).Msg("caching on-air event")
	return c.set(ctx, KeyOnAir+onAir.ChannelID, onAir, c.config.OnAirTTL)
}

// InvalidateOnAir removes the on-air cache for a channel.
func (c *Cache) InvalidateOnAir(ctx context.Context, channelID string) error {
	c.logger.Debug().Str("channel_id", channelID).Msg("invalidating on-air cache")
	return c.delete(ctx, KeyOnAir+channelID)
}

// Guide caching methods

// CachedGuideSegment is one guide row of a cached resolved day.
type CachedGuideSegment struct {
	Position      int       `json:"position"`
	ZoneName      string    `json:"zone_name"`
	CatalogItemID *string   `json:"catalog_item_id,omitempty"`
	Title         string    `json:"title"`
	Kind          string    `json:"kind"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
}

// CachedGuideDay represents a cached resolved broadcast day.
type CachedGuideDay struct {
	ChannelID     string               `json:"channel_id"`
	BroadcastDate string               `json:"broadcast_date"`
	Revision      int                  `json:"revision"`
	PlanName      string               `json:"plan_name"`
	Segments      []CachedGuideSegment `json:"segments"`
}

func guideKey(channelID, date string) string {
	return KeyGuideDay + channelID + ":" + date
}

// GetGuideDay retrieves a cached resolved day.
func (c *Cache) GetGuideDay(ctx context.Context, channelID, date string) (*CachedGuideDay, bool) {
	var day CachedGuideDay
	found, err := c.get(ctx, guideKey(channelID, date), &day)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("channel_id", channelID).Str("date", date).Msg("guide day cache hit")
	return &day, true
}

// SetGuideDay caches a resolved day.
func (c *Cache) SetGuideDay(ctx context.Context, day *CachedGuideDay) error {
	c.logger.Debug().Str("channel_id", day.ChannelID).Str("date", day.BroadcastDate).Msg("caching guide day")
	return c.set(ctx, guideKey(day.ChannelID, day.BroadcastDate), day, c.config.GuideDayTTL)
}

// InvalidateGuideDay removes one cached day.
func (c *Cache) InvalidateGuideDay(ctx context.Context, channelID, date string) error {
	c.logger.Debug().Str("channel_id", channelID).Str("date", date).Msg("invalidating guide day cache")
	return c.delete(ctx, guideKey(channelID, date))
}

// Bulk invalidation methods

// InvalidateChannel removes all caches related to a channel. Called when
// a day resolves or the channel mutates; stale guide and on-air answers
// must not outlive a new revision.
func (c *Cache) InvalidateChannel(ctx context.Context, channelID string) error {
	c.logger.Debug().Str("channel_id", channelID).Msg("invalidating all channel caches")

	if err := c.InvalidateChannelList(ctx); err != nil {
		return err
	}
	if err := c.InvalidateOnAir(ctx, channelID); err != nil {
		return err
	}
	if err := c.deletePattern(ctx, KeyGuideDay+channelID+":*"); err != nil {
		return err
	}
	return c.deletePattern(ctx, KeyCarryover+channelID+":*")
}

// FlushAll removes all cached data (use sparingly).
func (c *Cache) FlushAll(ctx context.Context) error {
	c.logger.Warn().Msg("flushing all cache data")
	return c.deletePattern(ctx, "saga:cache:*")
}
