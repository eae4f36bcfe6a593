package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache implements app.Cache on Redis. Mapping keys are Redis sets holding
// the cache keys derived from one source entity:
//
//	SET  {key} -> value (with TTL)
//	SADD {mappingKey} {key...}
//
// Invalidation reads the set members, deletes them in one pipeline and drops
// the set. Mapping keys carry a long safety TTL so orphaned sets do not
// accumulate when an entry expires before its tag is invalidated.
type Cache struct {
	client *redis.Client
	tagTTL time.Duration
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{
		client: client,
		tagTTL: 24 * time.Hour,
	}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *Cache) Tag(ctx context.Context, mappingKey string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]interface{}, 0, len(keys))
	for _, key := range keys {
		members = append(members, key)
	}
	pipe := c.client.Pipeline()
	pipe.SAdd(ctx, mappingKey, members...)
	pipe.Expire(ctx, mappingKey, c.tagTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Cache) Invalidate(ctx context.Context, mappingKeys ...string) error {
	for _, mappingKey := range mappingKeys {
		keys, err := c.client.SMembers(ctx, mappingKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		pipe := c.client.Pipeline()
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, mappingKey)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
