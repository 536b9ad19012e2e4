package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache holds read-side views of locations. Everything in it is advisory:
// a miss, a decode failure or an unreachable Redis all mean "ask the store".
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

func New(client *redis.Client) *Cache {
	return &Cache{rdb: client}
}

func getJSON[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var out T

	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return out, false
	}

	if err := json.Unmarshal(b, &out); err != nil {
		return out, false
	}

	return out, true
}

func setJSON(ctx context.Context, c *Cache, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, key, b, ttl).Err()
}

// GetOrSetJSON reads key or fills it from loader, collapsing concurrent
// misses on the same key into one load. A nil cache always calls loader.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if c == nil {
		return loader(ctx)
	}

	if v, ok := getJSON[T](ctx, c, key); ok {
		return v, nil
	}

	vAny, err, _ := c.sf.Do(key, func() (any, error) {
		if v, ok := getJSON[T](ctx, c, key); ok {
			return v, nil
		}

		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		_ = setJSON(ctx, c, key, v, ttl)

		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	v, ok := vAny.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("redis.GetOrSetJSON: %s holds %T", key, vAny)
	}

	return v, nil
}

// InvalidateLocation drops the cached location and availability views.
// Search pages are left to expire on their own.
func (c *Cache) InvalidateLocation(ctx context.Context, locationID int64) error {
	if c == nil {
		return nil
	}

	return c.rdb.Del(ctx, KeyLocation(locationID), KeyLocationAvailability(locationID)).Err()
}
