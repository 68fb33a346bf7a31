package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "webhook:event:"

// DedupCache remembers webhook event ids that have already been recorded in
// the database. It only short-circuits repeats; the database stays the
// authority.
type DedupCache struct {
	rdb *goredis.Client
	ttl time.Duration
}

func NewDedupCache(rdb *goredis.Client, ttl time.Duration) *DedupCache {
	return &DedupCache{rdb: rdb, ttl: ttl}
}

// NewClient parses a redis:// URL and verifies the server answers.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (c *DedupCache) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, keyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return n > 0, nil
}

func (c *DedupCache) Mark(ctx context.Context, eventID string) error {
	if err := c.rdb.SetNX(ctx, keyPrefix+eventID, "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("dedup mark: %w", err)
	}
	return nil
}
