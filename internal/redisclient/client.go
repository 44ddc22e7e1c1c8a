package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"pos-service/internal/models"
)

// statsCacheTTL bounds staleness if an invalidation is ever missed; the
// recompute path deletes the key explicitly.
const statsCacheTTL = 10 * time.Minute

// Client wraps redis for the two roles it plays here: the per-sale lock
// that serializes returns, and a read-through cache for daily statistics.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireLock acquires a distributed lock. The TTL bounds how long a
// crashed holder can block other workers.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}

func statsKey(date string) string {
	return fmt.Sprintf("stats:daily:%s", date)
}

// GetDailyStatistics returns a cached statistics document, or (nil, nil)
// on a cache miss.
func (c *Client) GetDailyStatistics(ctx context.Context, date string) (*models.DailyStatistics, error) {
	raw, err := c.rdb.Get(ctx, statsKey(date)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stats models.DailyStatistics
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, fmt.Errorf("corrupt statistics cache entry for %s: %w", date, err)
	}
	return &stats, nil
}

// SetDailyStatistics caches a statistics document
func (c *Client) SetDailyStatistics(ctx context.Context, stats models.DailyStatistics) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, statsKey(stats.Date), raw, statsCacheTTL).Err()
}

// InvalidateDailyStatistics drops the cached document after a recompute
func (c *Client) InvalidateDailyStatistics(ctx context.Context, date string) error {
	return c.rdb.Del(ctx, statsKey(date)).Err()
}
