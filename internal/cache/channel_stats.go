// Package cache holds the optional Redis-backed cache for channel profile
// statistics.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const defaultStatsTTL = 30 * time.Second

// ChannelStats are the aggregate counters shown on a channel profile.
type ChannelStats struct {
	SubscriberCount   int   `json:"subscriberCount"`
	SubscribedToCount int   `json:"subscribedToCount"`
	VideoCount        int   `json:"videoCount"`
	TotalViews        int64 `json:"totalViews"`
}

// Config configures the Redis connection for the stats cache. An empty Addr
// disables caching entirely.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
	TTL      time.Duration
	Logger   *slog.Logger
}

// ChannelStatsCache caches channel statistics in Redis with a short TTL and
// collapses concurrent recomputations of the same channel through
// singleflight. A nil cache is valid and computes on every call.
type ChannelStatsCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// New connects to Redis and returns the cache, or nil when no address is
// configured. Redis being unreachable at startup is not an error; every read
// falls back to computing directly.
func New(cfg Config) *ChannelStatsCache {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultStatsTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &ChannelStatsCache{client: client, ttl: ttl, logger: logger}
}

// Close releases the Redis connection.
func (c *ChannelStatsCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func statsKey(channelUserID string) string {
	return "clipstream:channel-stats:" + channelUserID
}

// Get returns the cached stats for the channel, computing and storing them on
// a miss. Concurrent misses for the same channel share one computation.
func (c *ChannelStatsCache) Get(ctx context.Context, channelUserID string, compute func() (ChannelStats, error)) (ChannelStats, error) {
	if c == nil || c.client == nil {
		return compute()
	}

	key := statsKey(channelUserID)
	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var stats ChannelStats
		if err := json.Unmarshal(cached, &stats); err == nil {
			return stats, nil
		}
		// Corrupt entry; fall through and recompute.
	} else if err != redis.Nil {
		c.logger.Warn("channel stats cache read failed", "channel", channelUserID, "error", err)
	}

	value, err, _ := c.group.Do(channelUserID, func() (any, error) {
		stats, err := compute()
		if err != nil {
			return ChannelStats{}, err
		}
		encoded, err := json.Marshal(stats)
		if err != nil {
			return stats, nil
		}
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			c.logger.Warn("channel stats cache write failed", "channel", channelUserID, "error", err)
		}
		return stats, nil
	})
	if err != nil {
		return ChannelStats{}, fmt.Errorf("compute channel stats: %w", err)
	}
	stats, ok := value.(ChannelStats)
	if !ok {
		return ChannelStats{}, fmt.Errorf("unexpected channel stats type %T", value)
	}
	return stats, nil
}

// Invalidate drops the cached stats for the channel. Failures are logged;
// a stale entry expires by TTL anyway.
func (c *ChannelStatsCache) Invalidate(ctx context.Context, channelUserID string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, statsKey(channelUserID)).Err(); err != nil {
		c.logger.Warn("channel stats cache invalidate failed", "channel", channelUserID, "error", err)
	}
}
