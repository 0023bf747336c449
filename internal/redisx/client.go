package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/tapcart/internal/config"
)

// New opens a client and checks the server answers.
func New(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}

	return rdb, nil
}

// Deduper records processed event ids so redelivered messages are skipped.
type Deduper struct {
	rdb     *redis.Client
	service string
	ttl     time.Duration
}

func NewDeduper(rdb *redis.Client, service string, ttl time.Duration) *Deduper {
	return &Deduper{rdb: rdb, service: service, ttl: ttl}
}

// FirstSeen reports whether eventID has not been recorded before, and
// records it.
func (d *Deduper) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	return d.rdb.SetNX(ctx, Key(KeyDedup, d.service, eventID), 1, d.ttl).Result()
}

// Forget removes eventID so a later delivery is processed again.
func (d *Deduper) Forget(ctx context.Context, eventID string) error {
	return d.rdb.Del(ctx, Key(KeyDedup, d.service, eventID)).Err()
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}
