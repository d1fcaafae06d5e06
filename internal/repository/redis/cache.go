package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redisx "github.com/kirinyoku/tix-gate/internal/redis"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache is a read-through JSON cache. It never makes a read fail: a Redis
// error or an undecodable entry falls back to the loader.
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{rdb: client}
}

// lookup reports a hit only when the entry exists and decodes into out.
func (c *Cache) lookup(ctx context.Context, key string, out any) bool {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(b, out) == nil
}

// GetOrSetJSON returns the cached value for key or loads, stores and returns
// it. Concurrent misses on one key share a single load. Loader errors are
// returned and nothing is stored.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	var hit T
	if c.lookup(ctx, key, &hit) {
		return hit, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		var again T
		if c.lookup(ctx, key, &again) {
			return again, nil
		}

		loaded, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		if b, err := json.Marshal(loaded); err == nil {
			_ = c.rdb.Set(ctx, key, b, ttl).Err()
		}

		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	out, ok := v.(T)
	if !ok {
		var zero T
		return zero, errors.New("redisrepo.GetOrSetJSON: unexpected shared value type")
	}

	return out, nil
}

// InvalidateArtifacts drops the cached bundle for a retrieval token, e.g.
// after one of its tickets was admitted.
func (c *Cache) InvalidateArtifacts(ctx context.Context, token string) error {
	return c.rdb.Del(ctx, redisx.KeyArtifacts(token)).Err()
}
