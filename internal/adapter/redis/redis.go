// Package redis implements the shared L2 cache and the per-workspace event
// sequencer on top of go-redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect parses url, dials and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Cache implements cache.Cache. Keys are namespaced with a prefix so
// several deployments can share one Redis.
type Cache struct {
	client *redis.Client
	prefix string
}

// NewCache wraps client. prefix may be empty.
func NewCache(client *redis.Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Get returns the cached value. redis.Nil is a miss, not an error.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, true, nil
}

// Set stores value. A zero ttl means no expiry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Sequencer implements broadcast.Sequencer with INCR, so every server
// instance draws from the same per-workspace counter.
type Sequencer struct {
	client *redis.Client
	prefix string
}

// NewSequencer wraps client.
func NewSequencer(client *redis.Client, prefix string) *Sequencer {
	return &Sequencer{client: client, prefix: prefix}
}

// Next increments and returns the workspace's counter.
func (s *Sequencer) Next(ctx context.Context, workspaceID string) (uint64, error) {
	n, err := s.client.Incr(ctx, s.prefix+":seq:"+workspaceID).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr seq %s: %w", workspaceID, err)
	}
	return uint64(n), nil //nolint:gosec // INCR starts at 1 and never goes negative
}
