package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/tapcart/internal/redisx"
)

// IdempotencyCache remembers which order a checkout key produced. The
// database unique index stays authoritative; the cache only spares a
// transaction on a retried request.
type IdempotencyCache interface {
	Lookup(ctx context.Context, storeID, key string) (orderID string, err error)
	Remember(ctx context.Context, storeID, key, orderID string) error
}

type RedisIdempotency struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisIdempotency(rdb *redis.Client, ttl time.Duration) *RedisIdempotency {
	return &RedisIdempotency{rdb: rdb, ttl: ttl}
}

// Lookup returns "" when the key is unknown.
func (r *RedisIdempotency) Lookup(ctx context.Context, storeID, key string) (string, error) {
	orderID, err := r.rdb.Get(ctx, redisx.Key(redisx.KeyIdemCheckout, storeID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return orderID, err
}

func (r *RedisIdempotency) Remember(ctx context.Context, storeID, key, orderID string) error {
	return r.rdb.Set(ctx, redisx.Key(redisx.KeyIdemCheckout, storeID, key), orderID, r.ttl).Err()
}
