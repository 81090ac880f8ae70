// Package boardcache keeps serialized boards in Redis. Entries are keyed by a
// generation counter that every mutation bumps, so a board cached before a
// mutation is never served after it.
package boardcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Cache is a read-through cache of the board read model.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger log.FieldLogger
}

// New connects to redisURL and verifies the connection.
func New(redisURL string, ttl time.Duration, logger log.FieldLogger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client, ttl, logger), nil
}

// NewWithClient creates a cache from an existing Redis client
func NewWithClient(client *redis.Client, ttl time.Duration, logger log.FieldLogger) *Cache {
	if ttl < 0 {
		ttl = 0
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Cache{
		client: client,
		prefix: "kanban:",
		ttl:    ttl,
		logger: logger.WithField("component", "boardcache"),
	}
}

func (c *Cache) generationKey() string {
	return c.prefix + "board:gen"
}

func (c *Cache) boardKey(generation int64) string {
	return c.prefix + "board:" + strconv.FormatInt(generation, 10)
}

// Fetch returns the cached board, calling load and caching its result on a
// miss. Redis failures fall back to load and never fail the read.
func (c *Cache) Fetch(ctx context.Context, load func(context.Context) ([]byte, error)) ([]byte, error) {
	generation, err := c.generation(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("board cache unavailable")
		return load(ctx)
	}

	data, err := c.client.Get(ctx, c.boardKey(generation)).Bytes()
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.logger.WithError(err).Warn("read cached board")
	}

	data, err = load(ctx)
	if err != nil {
		return nil, err
	}
	if c.ttl > 0 {
		if err := c.client.Set(ctx, c.boardKey(generation), data, c.ttl).Err(); err != nil {
			c.logger.WithError(err).Warn("store cached board")
		}
	}
	return data, nil
}

// Invalidate moves the cache to a new generation. Call it after a mutation
// has committed.
func (c *Cache) Invalidate(ctx context.Context) {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		c.logger.WithError(err).Warn("bump board generation")
	}
}

func (c *Cache) generation(ctx context.Context) (int64, error) {
	generation, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read board generation: %w", err)
	}
	return generation, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
