package redisrepo

import (
	"context"
	"errors"
	"time"

	redisx "github.com/kirinyoku/tix-gate/internal/redis"
	"github.com/redis/go-redis/v9"
)

// DedupStore is the shared burst filter for duplicate confirmations. It is
// visible to every instance, but it is still only an optimization: the
// ledger transaction decides.
type DedupStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDedupStore(rdb *redis.Client, ttl time.Duration) *DedupStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DedupStore{rdb: rdb, ttl: ttl}
}

// Seen reports whether the pair was marked, and the token stored with it.
func (s *DedupStore) Seen(ctx context.Context, paymentID, orderID string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, redisx.KeyDedup(paymentID, orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	return v, true, nil
}

// Mark records the pair. The first marker wins; later marks keep its TTL.
func (s *DedupStore) Mark(ctx context.Context, paymentID, orderID, token string) error {
	return s.rdb.SetNX(ctx, redisx.KeyDedup(paymentID, orderID), token, s.ttl).Err()
}
